package audio

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WAVRecorder is a playback device that renders scheduled buffers into a
// PCM16 WAV file on Close. It is used for headless runs.
type WAVRecorder struct {
	path       string
	sampleRate int
	opened     time.Time
	now        func() time.Time

	mu      sync.Mutex
	samples []float32
	closed  bool
}

func NewWAVRecorder(path string, sampleRate int) *WAVRecorder {
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	return &WAVRecorder{path: path, sampleRate: sampleRate, opened: time.Now(), now: time.Now}
}

func (r *WAVRecorder) Now() time.Duration { return r.now().Sub(r.opened) }

// Play writes samples at their scheduled offset, padding gaps with silence.
// Overlapping audio overwrites what was there.
func (r *WAVRecorder) Play(at time.Duration, samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrDeviceClosed
	}
	offset := int(at * time.Duration(r.sampleRate) / time.Second)
	if offset < 0 {
		offset = 0
	}
	if end := offset + len(samples); end > len(r.samples) {
		r.samples = append(r.samples, make([]float32, end-len(r.samples))...)
	}
	copy(r.samples[offset:], samples)
	return nil
}

// Flush truncates everything scheduled after the current clock.
func (r *WAVRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cut := int(r.Now() * time.Duration(r.sampleRate) / time.Second)
	if cut < len(r.samples) {
		r.samples = r.samples[:cut]
	}
	return nil
}

func (r *WAVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := WriteWAVFile(r.path, r.samples, r.sampleRate); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	return nil
}

// Samples returns a copy of the rendered audio.
func (r *WAVRecorder) Samples() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float32, len(r.samples))
	copy(out, r.samples)
	return out
}

// RecordingOpener captures from the embedded opener but records playback to a
// new WAV file per session.
type RecordingOpener struct {
	DeviceOpener
	Path string
}

func (o RecordingOpener) OpenPlayback(_ context.Context, sampleRate int) (PlaybackDevice, error) {
	if o.Path == "" {
		return nil, fmt.Errorf("recording path is empty")
	}
	return NewWAVRecorder(o.Path, sampleRate), nil
}
