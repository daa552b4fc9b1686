package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewPreservesExistingKind(t *testing.T) {
	inner := New(KindDeviceCapability, "open capture", errors.New("permission denied"))
	wrapped := New(KindStreamTransport, "start", inner)
	if got := KindOf(wrapped); got != KindDeviceCapability {
		t.Fatalf("KindOf() = %q, want %q", got, KindDeviceCapability)
	}
}

func TestKindOfThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", Errorf(KindArtifactGeneration, "image", "no images returned"))
	if !Is(err, KindArtifactGeneration) {
		t.Fatalf("Is(%v, artifact_generation) = false, want true", err)
	}
	if Is(nil, KindArtifactGeneration) {
		t.Fatalf("Is(nil) = true, want false")
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	err := New(KindStreamTransport, "stream", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("errors.Is(err, DeadlineExceeded) = false")
	}
	if err.Error() != "stream: context deadline exceeded" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
