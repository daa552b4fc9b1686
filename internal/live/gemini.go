// Package live implements realtime audio transports for the audio pipeline.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/audio"
	"github.com/ent0n29/synthdesk/internal/reliability"
)

const (
	defaultSetupTimeout = 10 * time.Second
	writeTimeout        = 5 * time.Second
)

type GeminiConfig struct {
	URL               string
	APIKey            string
	Model             string
	Voice             string
	SystemInstruction string
	SetupTimeout      time.Duration
	Logger            *zap.Logger
}

// GeminiDialer opens Gemini Live sessions over a websocket.
type GeminiDialer struct {
	cfg    GeminiConfig
	dialer websocket.Dialer
	logger *zap.Logger
}

func NewGeminiDialer(cfg GeminiConfig) (*GeminiDialer, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, apperr.Errorf(apperr.KindConfiguration, "live.gemini", "GEMINI_API_KEY is not set")
	}
	if _, err := url.Parse(cfg.URL); err != nil || strings.TrimSpace(cfg.URL) == "" {
		return nil, apperr.Errorf(apperr.KindConfiguration, "live.gemini", "invalid live url %q", cfg.URL)
	}
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = defaultSetupTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiDialer{
		cfg: cfg,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 4 * time.Second,
		},
		logger: logger.Named("live"),
	}, nil
}

func (d *GeminiDialer) endpoint() string {
	u, _ := url.Parse(d.cfg.URL)
	q := u.Query()
	q.Set("key", d.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}

// Dial connects, sends the session setup and waits for setupComplete.
func (d *GeminiDialer) Dial(ctx context.Context) (audio.Transport, <-chan audio.InboundEvent, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.endpoint(), nil)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("live dial failed (%s): %w", resp.Status, err)
		}
		return nil, nil, fmt.Errorf("live dial failed: %w", err)
	}

	t := &geminiTransport{conn: conn, done: make(chan struct{}), logger: d.logger}
	if err := t.writeJSON(newSetupMessage(d.cfg.Model, d.cfg.Voice, d.cfg.SystemInstruction)); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("live setup write: %w", err)
	}
	if err := waitForSetup(ctx, conn, d.cfg.SetupTimeout); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	events := make(chan audio.InboundEvent, 64)
	go t.readLoop(events)
	d.logger.Info("live session open", zap.String("model", d.cfg.Model))
	return t, events, nil
}

func waitForSetup(ctx context.Context, conn *websocket.Conn, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("live setup: %w", err)
		}
		msg, err := parseServerMessage(data)
		if err != nil {
			continue
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

type geminiTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (t *geminiTransport) SendAudio(_ context.Context, data, mimeType string) error {
	return t.writeJSON(realtimeInputMessage{RealtimeInput: realtimeInput{
		Audio: blob{MimeType: mimeType, Data: data},
	}})
}

func (t *geminiTransport) writeJSON(payload any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.done:
		return audio.ErrSessionClosed
	default:
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer t.conn.SetWriteDeadline(time.Time{})
	return t.conn.WriteJSON(payload)
}

func (t *geminiTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		close(t.done)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

func (t *geminiTransport) readLoop(events chan<- audio.InboundEvent) {
	defer close(events)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			t.emit(events, audio.InboundEvent{Kind: audio.InboundError, Err: classifyReadError(err)})
			return
		}
		msg, err := parseServerMessage(data)
		if err != nil {
			t.logger.Warn("ignoring malformed live message", zap.Error(err))
			continue
		}
		if msg.GoAway != nil {
			t.logger.Info("live session ending soon", zap.String("time_left", msg.GoAway.TimeLeft))
		}
		for _, ev := range inboundEvents(msg) {
			if !t.emit(events, ev) {
				return
			}
		}
	}
}

func (t *geminiTransport) emit(events chan<- audio.InboundEvent, ev audio.InboundEvent) bool {
	select {
	case events <- ev:
		return true
	case <-t.done:
		return false
	}
}

// ErrRetryableClose marks upstream closes worth a fresh session.
var ErrRetryableClose = errors.New("live session closed by upstream, retry later")

func classifyReadError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && reliability.IsRetryableCloseCode(ce.Code) {
		return fmt.Errorf("%w: %v", ErrRetryableClose, err)
	}
	return fmt.Errorf("live read: %w", err)
}
