package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/audio"
)

func TestNewGeminiDialerRequiresKey(t *testing.T) {
	_, err := NewGeminiDialer(GeminiConfig{URL: "wss://example.test/live"})
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestInboundEventsOrder(t *testing.T) {
	msg, err := parseServerMessage([]byte(`{"serverContent":{"interrupted":true,"modelTurn":{"parts":[{"text":"hi"},{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAA="}}]},"turnComplete":true}}`))
	require.NoError(t, err)

	events := inboundEvents(msg)
	require.Len(t, events, 3)
	assert.Equal(t, audio.InboundInterrupted, events[0].Kind)
	assert.Equal(t, audio.InboundAudio, events[1].Kind)
	assert.Equal(t, "AAA=", events[1].Data)
	assert.Equal(t, audio.InboundTurnComplete, events[2].Kind)
}

func TestGeminiDialerSessionRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan map[string]any, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var setupMsg map[string]any
		if err := conn.ReadJSON(&setupMsg); err != nil {
			return
		}
		received <- setupMsg
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))

		var input map[string]any
		if err := conn.ReadJSON(&input); err != nil {
			return
		}
		received <- input
		// Binary frames carry JSON too.
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"data":"AAAAAA=="}}]}}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	d, err := NewGeminiDialer(GeminiConfig{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey: "test-key",
		Model:  "gemini-live-test",
		Voice:  "Orus",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	transport, events, err := d.Dial(ctx)
	require.NoError(t, err)

	setupMsg := <-received
	raw, _ := json.Marshal(setupMsg)
	assert.Contains(t, string(raw), `"model":"models/gemini-live-test"`)
	assert.Contains(t, string(raw), `"voiceName":"Orus"`)

	require.NoError(t, transport.SendAudio(ctx, "AQI=", audio.CaptureMIMEType))
	input := <-received
	raw, _ = json.Marshal(input)
	assert.JSONEq(t, `{"realtimeInput":{"audio":{"mimeType":"audio/pcm;rate=16000","data":"AQI="}}}`, string(raw))

	select {
	case ev := <-events:
		assert.Equal(t, audio.InboundAudio, ev.Kind)
		assert.Equal(t, "AAAAAA==", ev.Data)
	case <-ctx.Done():
		t.Fatal("no inbound audio")
	}

	require.NoError(t, transport.Close())
	for range events {
	}
	assert.ErrorIs(t, transport.SendAudio(ctx, "AQI=", audio.CaptureMIMEType), audio.ErrSessionClosed)
}

func TestGeminiDialerRejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	d, err := NewGeminiDialer(GeminiConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), APIKey: "k", Model: "m"})
	require.NoError(t, err)
	_, _, err = d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestEchoDialerLoopsBackResampledAudio(t *testing.T) {
	transport, events, err := EchoDialer{}.Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, transport.SendAudio(context.Background(), audio.EncodeFrame(make([]float32, 160)), audio.CaptureMIMEType))
	ev := <-events
	samples, err := audio.DecodeFrame(ev.Data)
	require.NoError(t, err)
	assert.Len(t, samples, 240)

	require.NoError(t, transport.Close())
	_, ok := <-events
	assert.False(t, ok)
	assert.ErrorIs(t, transport.SendAudio(context.Background(), "", audio.CaptureMIMEType), audio.ErrSessionClosed)
}

func TestEchoPipelineEndToEnd(t *testing.T) {
	bridge := audio.NewBridge()
	played := make(chan audio.PlaybackBuffer, 4)
	detach := bridge.Attach(func(buf audio.PlaybackBuffer) error {
		played <- buf
		return nil
	})
	defer detach()

	p := audio.NewPipeline(audio.PipelineConfig{Devices: bridge, Dialer: EchoDialer{}})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.True(t, bridge.PushCapture(make([]float32, audio.CaptureFrameSamples)))
	select {
	case buf := <-played:
		assert.Equal(t, audio.CaptureFrameSamples*3/2, buf.Samples)
		assert.Equal(t, audio.PlaybackSampleRate, buf.SampleRate)
	case <-time.After(2 * time.Second):
		t.Fatal("echoed audio was not played")
	}
}
