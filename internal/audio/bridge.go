package audio

import (
	"context"
	"sync"
	"time"
)

// PlaybackBuffer is a scheduled buffer sent to the browser speaker.
type PlaybackBuffer struct {
	StartAt    time.Duration
	SampleRate int
	Samples    int
	Data       string
	// Flush asks the client to drop everything it has queued.
	Flush bool
}

// BridgeSink delivers playback buffers to the attached client.
type BridgeSink func(PlaybackBuffer) error

// Bridge turns a browser connection into the microphone and speaker. The
// browser pushes capture frames and plays what the sink receives, using the
// bridge's clock (time since the playback device was opened).
type Bridge struct {
	frameSamples int

	mu       sync.Mutex
	sink     BridgeSink
	capture  *bridgeCapture
	playback *bridgePlayback
	now      func() time.Time
}

func NewBridge() *Bridge {
	return &Bridge{frameSamples: CaptureFrameSamples, now: time.Now}
}

// Attach sets the client sink. The returned func detaches it if it is still current.
func (b *Bridge) Attach(sink BridgeSink) func() {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.sink = nil
		})
	}
}

// PushCapture hands microphone samples from the client to the open capture
// device. It reports false when no capture device is open.
func (b *Bridge) PushCapture(samples []float32) bool {
	b.mu.Lock()
	c := b.capture
	b.mu.Unlock()
	if c == nil {
		return false
	}
	return c.push(samples)
}

func (b *Bridge) OpenCapture(_ context.Context, _ int) (CaptureDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sink == nil {
		return nil, ErrNoClient
	}
	c := &bridgeCapture{
		bridge:       b,
		frameSamples: b.frameSamples,
		in:           make(chan []float32, 32),
		done:         make(chan struct{}),
	}
	b.capture = c
	return c, nil
}

func (b *Bridge) OpenPlayback(_ context.Context, sampleRate int) (PlaybackDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sink == nil {
		return nil, ErrNoClient
	}
	p := &bridgePlayback{bridge: b, sampleRate: sampleRate, opened: b.now()}
	b.playback = p
	return p, nil
}

func (b *Bridge) send(buf PlaybackBuffer) error {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink == nil {
		return ErrNoClient
	}
	return sink(buf)
}

type bridgeCapture struct {
	bridge       *Bridge
	frameSamples int
	in           chan []float32
	done         chan struct{}
	once         sync.Once
	pending      []float32
}

func (c *bridgeCapture) push(samples []float32) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.in <- samples:
		return true
	default:
		// Drop rather than block the client reader.
		return false
	}
}

// ReadFrame regroups client chunks into fixed-size frames.
func (c *bridgeCapture) ReadFrame(ctx context.Context) ([]float32, error) {
	for len(c.pending) < c.frameSamples {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrDeviceClosed
		case samples := <-c.in:
			c.pending = append(c.pending, samples...)
		}
	}
	frame := make([]float32, c.frameSamples)
	copy(frame, c.pending)
	c.pending = append(c.pending[:0], c.pending[c.frameSamples:]...)
	return frame, nil
}

func (c *bridgeCapture) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.bridge.mu.Lock()
		if c.bridge.capture == c {
			c.bridge.capture = nil
		}
		c.bridge.mu.Unlock()
	})
	return nil
}

type bridgePlayback struct {
	bridge     *Bridge
	sampleRate int
	opened     time.Time

	mu     sync.Mutex
	closed bool
}

func (p *bridgePlayback) Now() time.Duration {
	return p.bridge.now().Sub(p.opened)
}

func (p *bridgePlayback) Play(at time.Duration, samples []float32) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrDeviceClosed
	}
	return p.bridge.send(PlaybackBuffer{
		StartAt:    at,
		SampleRate: p.sampleRate,
		Samples:    len(samples),
		Data:       EncodeFrame(samples),
	})
}

func (p *bridgePlayback) Flush() error {
	return p.bridge.send(PlaybackBuffer{Flush: true, SampleRate: p.sampleRate})
}

func (p *bridgePlayback) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.bridge.mu.Lock()
	if p.bridge.playback == p {
		p.bridge.playback = nil
	}
	p.bridge.mu.Unlock()
	return nil
}
