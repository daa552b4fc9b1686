package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/observability"
)

// State is the lifecycle of one audio session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosed     State = "closed"
)

var (
	ErrSessionClosed = errors.New("audio session closed")
	ErrSessionBusy   = errors.New("audio session already started")
)

type PipelineConfig struct {
	Devices DeviceOpener
	Dialer  Dialer
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// OnState, if set, is called after every state transition.
	OnState func(id string, state State)
}

// Pipeline streams microphone audio to a realtime transport and schedules the
// returned audio for gapless playback. Callbacks check the state before acting
// so frames that arrive after Stop are dropped.
type Pipeline struct {
	id      string
	devices DeviceOpener
	dialer  Dialer
	logger  *zap.Logger
	metrics *observability.Metrics
	onState func(string, State)

	mu        sync.Mutex
	state     State
	capture   CaptureDevice
	playback  PlaybackDevice
	transport Transport
	sched     *Scheduler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Pipeline{
		id:      id,
		devices: cfg.Devices,
		dialer:  cfg.Dialer,
		logger:  logger.Named("audio").With(zap.String("audio_session_id", id)),
		metrics: cfg.Metrics,
		onState: cfg.OnState,
		state:   StateIdle,
		sched:   NewScheduler(PlaybackSampleRate),
	}
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start acquires both devices, dials the transport and starts streaming.
// Device failures leave the pipeline Idle so Start can be retried.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateClosed:
		p.mu.Unlock()
		return ErrSessionClosed
	case StateConnecting, StateActive:
		p.mu.Unlock()
		return ErrSessionBusy
	}
	if p.devices == nil || p.dialer == nil {
		p.mu.Unlock()
		return apperr.Errorf(apperr.KindConfiguration, "audio.start", "audio devices or transport not configured")
	}
	p.state = StateConnecting
	p.mu.Unlock()
	p.notify(StateConnecting)

	capture, err := p.devices.OpenCapture(ctx, CaptureSampleRate)
	if err != nil {
		p.metrics.IncAudioSessionEvent("device_error")
		p.backToIdle()
		return apperr.New(apperr.KindDeviceCapability, "audio.open_capture", err)
	}
	playback, err := p.devices.OpenPlayback(ctx, PlaybackSampleRate)
	if err != nil {
		_ = capture.Close()
		p.metrics.IncAudioSessionEvent("device_error")
		p.backToIdle()
		return apperr.New(apperr.KindDeviceCapability, "audio.open_playback", err)
	}

	transport, events, err := p.dialer.Dial(ctx)
	if err != nil {
		_ = capture.Close()
		_ = playback.Close()
		p.metrics.IncAudioSessionEvent("dial_error")
		p.backToIdle()
		return apperr.New(apperr.KindStreamTransport, "audio.dial", err)
	}

	p.mu.Lock()
	if p.state != StateConnecting {
		// Stopped while connecting.
		p.mu.Unlock()
		_ = transport.Close()
		_ = capture.Close()
		_ = playback.Close()
		return ErrSessionClosed
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	p.capture = capture
	p.playback = playback
	p.transport = transport
	p.cancel = cancel
	p.sched.Reset(playback.Now())
	p.state = StateActive
	p.wg.Add(2)
	go p.captureLoop(loopCtx, capture, transport)
	go p.receiveLoop(loopCtx, events)
	p.mu.Unlock()

	p.metrics.IncAudioSessionEvent("start")
	p.logger.Info("audio session active")
	p.notify(StateActive)
	return nil
}

// Stop releases devices and the transport. It is safe to call from any state
// and more than once.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	p.state = StateClosed
	capture, playback, transport, cancel := p.capture, p.playback, p.transport, p.cancel
	p.capture, p.playback, p.transport, p.cancel = nil, nil, nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs []error
	if transport != nil {
		if err := transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	if capture != nil {
		if err := capture.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close capture: %w", err))
		}
	}
	p.wg.Wait()
	if playback != nil {
		if err := playback.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close playback: %w", err))
		}
	}

	p.metrics.IncAudioSessionEvent("stop")
	p.logger.Info("audio session closed")
	p.notify(StateClosed)
	return errors.Join(errs...)
}

func (p *Pipeline) backToIdle() {
	p.mu.Lock()
	if p.state != StateConnecting {
		p.mu.Unlock()
		return
	}
	p.state = StateIdle
	p.mu.Unlock()
	p.notify(StateIdle)
}

func (p *Pipeline) notify(state State) {
	if p.onState != nil {
		p.onState(p.id, state)
	}
}

func (p *Pipeline) captureLoop(ctx context.Context, capture CaptureDevice, transport Transport) {
	defer p.wg.Done()
	for {
		samples, err := capture.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrDeviceClosed) {
				p.logger.Warn("capture read failed", zap.Error(err))
			}
			return
		}
		if p.State() != StateActive {
			return
		}
		if err := transport.SendAudio(ctx, EncodeFrame(samples), CaptureMIMEType); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("send audio frame failed", zap.Error(err))
			continue
		}
		p.metrics.IncAudioFrame("out")
	}
}

func (p *Pipeline) receiveLoop(ctx context.Context, events <-chan InboundEvent) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				p.logger.Info("realtime transport closed")
				return
			}
			p.handleInbound(ev)
		}
	}
}

func (p *Pipeline) handleInbound(ev InboundEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive || p.playback == nil {
		return
	}

	switch ev.Kind {
	case InboundAudio:
		samples, err := DecodeFrame(ev.Data)
		if err != nil {
			p.logger.Warn("dropping malformed audio frame", zap.Error(err))
			return
		}
		if len(samples) == 0 {
			return
		}
		now := p.playback.Now()
		start, dur := p.sched.Peek(now, len(samples))
		if err := p.playback.Play(start, samples); err != nil {
			// The cursor stays put so the next buffer fills this slot.
			p.metrics.IncAudioFrame("playback_dropped")
			p.logger.Warn("playback failed", zap.Error(err))
			return
		}
		p.sched.Commit(start, dur)
		p.metrics.IncAudioFrame("in")
		p.metrics.ObservePlaybackLag((start - now).Seconds())
	case InboundInterrupted:
		if f, ok := p.playback.(Flusher); ok {
			if err := f.Flush(); err != nil {
				p.logger.Warn("playback flush failed", zap.Error(err))
			}
		}
		p.sched.Reset(p.playback.Now())
		p.metrics.IncAudioSessionEvent("interrupted")
	case InboundTurnComplete:
		p.logger.Debug("model turn complete", zap.Duration("queued_until", p.sched.Next()))
	case InboundError:
		p.metrics.IncAudioSessionEvent("transport_error")
		p.logger.Warn("realtime transport error", zap.Error(ev.Err))
	}
}

// queuedUntil is the scheduler cursor, for tests.
func (p *Pipeline) queuedUntil() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sched.Next()
}
