package generation

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
)

// ScriptFunc decides the chunks (and optional terminal error) for a request.
type ScriptFunc func(req Request) ([]Chunk, error)

// MockGenerator provides deterministic local screens when no remote
// generator is configured. Tests script it and can gate every chunk on Step.
type MockGenerator struct {
	script ScriptFunc
	// Step, when non-nil, must yield once before each chunk is delivered.
	Step <-chan struct{}

	mu       sync.Mutex
	requests []Request
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{script: defaultScript}
}

func NewScriptedGenerator(script ScriptFunc) *MockGenerator {
	if script == nil {
		script = defaultScript
	}
	return &MockGenerator{script: script}
}

func (g *MockGenerator) StreamContent(ctx context.Context, req Request, onChunk ChunkHandler) error {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	chunks, scriptErr := g.script(req)
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.Step != nil {
			select {
			case <-g.Step:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return err
			}
		}
	}
	return scriptErr
}

// Calls returns how many generations were started.
func (g *MockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// Requests returns a copy of every request seen, in order.
func (g *MockGenerator) Requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// TextChunks is a ScriptFunc helper for plain text fragments.
func TextChunks(parts ...string) []Chunk {
	out := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		out = append(out, Chunk{Text: p})
	}
	return out
}

func defaultScript(req Request) ([]Chunk, error) {
	app := req.AppID
	if app == "" {
		app = "desktop"
	}
	title := strings.ReplaceAll(strings.TrimSuffix(app, "_app"), "_", " ")
	summary := html.EscapeString(firstLine(req.InteractionSummary))
	return []Chunk{
		{Text: fmt.Sprintf(`<div class="llm-container"><h2 class="llm-title">%s</h2>`, html.EscapeString(title))},
		{Text: fmt.Sprintf(`<p class="llm-text">%s</p>`, summary)},
		{Text: `<button class="llm-button" data-interaction-id="mock_refresh">Refresh</button></div>`},
	}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
