// Package apperr defines the failure taxonomy shared by the desktop core.
//
// Remote and device failures are normalized into an *Error as soon as they
// cross into the core so callers branch on Kind instead of provider shapes.
package apperr

import (
	"errors"
	"fmt"
)

// Kind tags an Error with its handling policy.
type Kind string

const (
	// KindConfiguration: missing credential or capability. Shown once, never retried.
	KindConfiguration Kind = "configuration"
	// KindEmptyHistory: generation requested without any interaction.
	KindEmptyHistory Kind = "empty_history"
	// KindStreamTransport: network or protocol failure while streaming.
	KindStreamTransport Kind = "stream_transport"
	// KindDeviceCapability: microphone or speaker unavailable or denied.
	KindDeviceCapability Kind = "device_capability"
	// KindArtifactGeneration: image, video or icon request failed.
	KindArtifactGeneration Kind = "artifact_generation"
)

// Error is the tagged error variant used at orchestration boundaries.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. An err that is already an *Error keeps its kind.
func New(kind Kind, op string, err error) error {
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
