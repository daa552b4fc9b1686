// Package journal keeps an append-only log of generation outcomes for
// operators. It is never read back into the desktop: screens are not
// restored from it.
package journal

import (
	"context"
	"time"
)

// Outcome values recorded for a generation.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
	OutcomeCacheHit   = "cache_hit"
)

// Entry describes one screen request and how it ended.
type Entry struct {
	ID         string    `json:"id"`
	PathKey    string    `json:"path_key"`
	AppID      string    `json:"app_id"`
	Outcome    string    `json:"outcome"`
	Fragments  int       `json:"fragments"`
	Citations  int       `json:"citations"`
	Bytes      int       `json:"bytes"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists journal entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

const defaultRecentLimit = 50
