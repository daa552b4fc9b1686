package interaction

import (
	"strings"
	"unicode/utf8"
)

// Kind classifies what the user did.
type Kind string

const (
	KindAppOpen      Kind = "app_open"
	KindGenericClick Kind = "generic_click"
	KindTextInput    Kind = "text_input"
	KindAudioToggle  Kind = "audio_toggle"
)

// MaxLabelRunes caps the element label carried into prompts.
const MaxLabelRunes = 75

// Record is one user interaction. Build it with NewRecord and treat it as immutable.
type Record struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"type"`
	ElementLabel string `json:"elementText,omitempty"`
	Payload      string `json:"value,omitempty"`
	AppContext   string `json:"appContext,omitempty"`
}

// NewRecord normalizes the fields of an interaction.
func NewRecord(id string, kind Kind, label, payload, appContext string) Record {
	if kind == "" {
		kind = KindGenericClick
	}
	return Record{
		ID:           sanitizeID(id),
		Kind:         kind,
		ElementLabel: truncateRunes(strings.TrimSpace(label), MaxLabelRunes),
		Payload:      payload,
		AppContext:   strings.TrimSpace(appContext),
	}
}

// Normalize re-applies NewRecord's rules to a decoded record.
func (r Record) Normalize() Record {
	return NewRecord(r.ID, r.Kind, r.ElementLabel, r.Payload, r.AppContext)
}

// DisplayName is the label, falling back to the id.
func (r Record) DisplayName() string {
	if r.ElementLabel != "" {
		return r.ElementLabel
	}
	if r.ID != "" {
		return r.ID
	}
	return "Unknown Element"
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if strings.Contains(id, PathSeparator) {
		id = strings.ReplaceAll(id, PathSeparator, "")
	}
	return id
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// Preview returns at most max runes of s.
func Preview(s string, max int) string {
	return truncateRunes(s, max)
}
