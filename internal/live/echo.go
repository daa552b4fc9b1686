package live

import (
	"context"
	"sync"

	"github.com/ent0n29/synthdesk/internal/audio"
)

// EchoDialer is a loopback transport: captured audio is played straight back,
// resampled to the playback rate. It needs no credentials.
type EchoDialer struct{}

func (EchoDialer) Dial(ctx context.Context) (audio.Transport, <-chan audio.InboundEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	t := &echoTransport{events: make(chan audio.InboundEvent, 64)}
	return t, t.events, nil
}

type echoTransport struct {
	mu     sync.Mutex
	closed bool
	events chan audio.InboundEvent
}

func (t *echoTransport) SendAudio(_ context.Context, data, _ string) error {
	samples, err := audio.DecodeFrame(data)
	if err != nil {
		return err
	}
	out := audio.EncodeFrame(resample(samples, audio.CaptureSampleRate, audio.PlaybackSampleRate))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return audio.ErrSessionClosed
	}
	select {
	case t.events <- audio.InboundEvent{Kind: audio.InboundAudio, Data: out}:
	default:
		// Playback is behind; drop rather than stall capture.
	}
	return nil
}

func (t *echoTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	return nil
}

// resample converts between rates with linear interpolation.
func resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return append([]float32(nil), in...)
	}
	n := len(in) * to / from
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * float64(from) / float64(to)
		j := int(pos)
		frac := float32(pos - float64(j))
		if j+1 < len(in) {
			out[i] = in[j]*(1-frac) + in[j+1]*frac
		} else {
			out[i] = in[len(in)-1]
		}
	}
	return out
}
