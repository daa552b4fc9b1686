package audio

import (
	"context"
	"sync"
)

// Status is a snapshot of the managed session.
type Status struct {
	SessionID string `json:"session_id,omitempty"`
	State     State  `json:"state"`
}

// Manager owns at most one pipeline at a time.
type Manager struct {
	cfg PipelineConfig

	mu      sync.Mutex
	current *Pipeline
}

func NewManager(cfg PipelineConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Start opens a session. A pipeline left Idle by a device failure is retried;
// a closed one is replaced.
func (m *Manager) Start(ctx context.Context) (Status, error) {
	m.mu.Lock()
	p := m.current
	if p == nil || p.State() == StateClosed {
		p = NewPipeline(m.cfg)
		m.current = p
	}
	m.mu.Unlock()

	err := p.Start(ctx)
	return Status{SessionID: p.ID(), State: p.State()}, err
}

// Stop closes the current session, if any.
func (m *Manager) Stop() error {
	m.mu.Lock()
	p := m.current
	m.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Stop()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	p := m.current
	m.mu.Unlock()
	if p == nil {
		return Status{State: StateIdle}
	}
	return Status{SessionID: p.ID(), State: p.State()}
}
