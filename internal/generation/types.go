package generation

import (
	"context"
	"strings"
)

// Citation is a grounding source attached to generated output.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Chunk is one piece of generator output with its out-of-band citations.
type Chunk struct {
	Text      string     `json:"text,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// ChunkHandler receives chunks in arrival order. A non-nil error stops the stream.
type ChunkHandler func(chunk Chunk) error

// Request is the composed generation request handed to a Generator.
type Request struct {
	AppID              string `json:"app_id,omitempty"`
	SystemDirective    string `json:"system_directive"`
	InteractionSummary string `json:"interaction_summary"`
	HistorySegment     string `json:"history_segment,omitempty"`
	PreviousContent    string `json:"previous_content,omitempty"`
	CurrentRecord      string `json:"current_record"`
	WebSearch          bool   `json:"web_search,omitempty"`
}

// Prompt flattens everything except the system directive into a single user turn.
func (r Request) Prompt() string {
	var b strings.Builder
	b.WriteString(r.InteractionSummary)
	if r.HistorySegment != "" {
		b.WriteString("\n\n")
		b.WriteString(r.HistorySegment)
	}
	if r.PreviousContent != "" {
		b.WriteString("\n\nPrevious screen content (scripts removed):\n")
		b.WriteString(r.PreviousContent)
	}
	b.WriteString("\n\nFull context for the current interaction (for reference; rely mainly on the summary and history):\n")
	b.WriteString(r.CurrentRecord)
	b.WriteString("\n\nGenerate the HTML content for the window's content area only:")
	return b.String()
}

// Generator is the remote content generation capability.
type Generator interface {
	StreamContent(ctx context.Context, req Request, onChunk ChunkHandler) error
}

// FragmentKind tells the consumer how to treat a Fragment.
type FragmentKind string

const (
	FragmentText      FragmentKind = "text"
	FragmentCitations FragmentKind = "citations"
	FragmentError     FragmentKind = "error"
)

// Fragment is one element of the orchestrator's output stream. A
// FragmentError is always the last fragment of its stream.
type Fragment struct {
	Kind FragmentKind
	Text string
	Err  error
}
