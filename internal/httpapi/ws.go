package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/synthdesk/internal/audio"
	"github.com/ent0n29/synthdesk/internal/desktop"
	"github.com/ent0n29/synthdesk/internal/protocol"
)

var errOutboundFull = errors.New("outbound queue full")

type wsClient struct {
	ctx      context.Context
	outbound chan any
}

// send queues msg, waiting for room until the connection ends.
func (c *wsClient) send(msg any) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.outbound <- msg:
		return true
	}
}

// offer queues msg without blocking.
func (c *wsClient) offer(msg any) error {
	select {
	case c.outbound <- msg:
		return nil
	default:
		return errOutboundFull
	}
}

func (s *Server) addClient(c *wsClient) {
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}

// BroadcastAudioState tells every connected client about an audio session transition.
func (s *Server) BroadcastAudioState(sessionID string, state audio.State) {
	msg := protocol.AudioState{Type: protocol.TypeAudioState, SessionID: sessionID, State: string(state)}
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		if err := c.offer(msg); err != nil {
			s.metrics.ObserveWSMessage("outbound", string(protocol.TypeAudioState)+"_dropped")
		}
	}
}

func (s *Server) handleDesktopWS(w http.ResponseWriter, r *http.Request) {
	if !s.requireDesktop(w) {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := &wsClient{ctx: ctx, outbound: make(chan any, 256)}
	s.addClient(client)
	defer s.removeClient(client)
	s.logger.Debug("desktop client connected", zap.String("remote", r.RemoteAddr))
	_ = client.offer(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "connected"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, cancel, conn, client.outbound)
	}()

	states, unsubscribe := s.desktop.Subscribe()
	defer unsubscribe()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-states:
				if !client.send(contentStateMessage(st)) {
					return
				}
			}
		}
	}()

	if s.bridge != nil {
		detach := s.bridge.Attach(func(buf audio.PlaybackBuffer) error {
			return client.offer(playbackMessage(buf))
		})
		defer detach()
	}

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.queueError(client, "invalid_client_message", "gateway", false, err.Error())
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		s.dispatch(client, &wg, parsed)
	}

	cancel()
	wg.Wait()
	s.logger.Debug("desktop client disconnected", zap.String("remote", r.RemoteAddr))
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, outbound <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.IncWSWriteError()
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}
}

func (s *Server) dispatch(client *wsClient, wg *sync.WaitGroup, msg any) {
	switch m := msg.(type) {
	case protocol.AppOpen:
		if err := s.desktop.OnAppOpen(m.AppID); err != nil {
			s.queueAppError(client, "desktop", err)
		}
	case protocol.Interaction:
		if err := s.desktop.OnInteraction(m.Interaction); err != nil {
			s.queueAppError(client, "desktop", err)
		}
	case protocol.Close:
		s.desktop.OnClose()
	case protocol.AudioControl:
		if s.audio == nil {
			s.queueError(client, "unavailable", "audio", false, "audio sessions not configured")
			return
		}
		if m.Action == protocol.AudioActionStop {
			if err := s.audio.Stop(); err != nil {
				s.logger.Warn("audio stop failed", zap.Error(err))
			}
			return
		}
		// Starting dials upstream; keep reading capture frames meanwhile.
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), audioStartTimeout)
			defer cancel()
			if _, err := s.audio.Start(ctx); err != nil {
				s.queueAppError(client, "audio", err)
			}
		}()
	case protocol.AudioCaptureFrame:
		if s.bridge == nil || !s.bridge.PushCapture(m.Samples) {
			s.metrics.IncAudioFrame("capture_dropped")
		}
	}
}

func (s *Server) queueAppError(client *wsClient, source string, err error) {
	code, retryable := errorCode(err)
	s.queueError(client, code, source, retryable, err.Error())
}

func (s *Server) queueError(client *wsClient, code, source string, retryable bool, detail string) {
	msg := protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	}
	if err := client.offer(msg); err != nil {
		// Keep websocket writes single-threaded; drop if outbound queue is saturated.
		s.metrics.ObserveWSMessage("outbound", string(protocol.TypeErrorEvent)+"_dropped")
	}
}

func contentStateMessage(st desktop.State) protocol.ContentState {
	return protocol.ContentState{
		Type:      protocol.TypeContentState,
		AppID:     st.AppID,
		PathKey:   st.PathKey,
		Content:   st.Content,
		IsLoading: st.IsLoading,
		Error:     st.Error,
		Retryable: st.Retryable,
	}
}

func playbackMessage(buf audio.PlaybackBuffer) protocol.AudioPlayback {
	return protocol.AudioPlayback{
		Type:        protocol.TypeAudioPlayback,
		StartAtMs:   float64(buf.StartAt.Microseconds()) / 1000,
		SampleRate:  buf.SampleRate,
		Samples:     buf.Samples,
		PCM16Base64: buf.Data,
		Flush:       buf.Flush,
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.AppOpen:
		return m.Type, true
	case protocol.Interaction:
		return m.Type, true
	case protocol.Close:
		return m.Type, true
	case protocol.AudioControl:
		return m.Type, true
	case protocol.AudioCaptureFrame:
		return m.Type, true
	case protocol.ContentState:
		return m.Type, true
	case protocol.AudioPlayback:
		return m.Type, true
	case protocol.AudioState:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
