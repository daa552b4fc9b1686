package audio

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDeviceClosed = errors.New("audio device closed")
	ErrNoClient     = errors.New("no audio client attached")
)

// CaptureDevice yields microphone frames.
type CaptureDevice interface {
	// ReadFrame blocks for the next frame. It returns ErrDeviceClosed after Close.
	ReadFrame(ctx context.Context) ([]float32, error)
	Close() error
}

// PlaybackDevice plays buffers at positions on its own clock.
type PlaybackDevice interface {
	Now() time.Duration
	Play(at time.Duration, samples []float32) error
	Close() error
}

// Flusher is implemented by playback devices that can drop queued audio.
type Flusher interface {
	Flush() error
}

// DeviceOpener acquires the microphone and speaker.
type DeviceOpener interface {
	OpenCapture(ctx context.Context, sampleRate int) (CaptureDevice, error)
	OpenPlayback(ctx context.Context, sampleRate int) (PlaybackDevice, error)
}

// InboundKind classifies events from the realtime transport.
type InboundKind string

const (
	InboundAudio        InboundKind = "audio"
	InboundInterrupted  InboundKind = "interrupted"
	InboundTurnComplete InboundKind = "turn_complete"
	InboundError        InboundKind = "error"
)

// InboundEvent is one message from the model side. Data holds base64 PCM16
// at PlaybackSampleRate for InboundAudio.
type InboundEvent struct {
	Kind InboundKind
	Data string
	Err  error
}

// Transport is an open realtime session.
type Transport interface {
	SendAudio(ctx context.Context, data, mimeType string) error
	Close() error
}

// Dialer opens a realtime session. The events channel is closed when the
// session ends.
type Dialer interface {
	Dial(ctx context.Context) (Transport, <-chan InboundEvent, error)
}
