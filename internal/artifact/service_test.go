package artifact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/synthdesk/internal/apperr"
)

type failingBackend struct{ MockBackend }

func (failingBackend) GenerateImage(context.Context, string, string) (string, error) {
	return "", errors.New("quota exhausted")
}

func TestServiceGeneratesWithMockBackend(t *testing.T) {
	s := NewService(MockBackend{}, 100, 10, nil, nil)

	img, err := s.Generate(context.Background(), KindImage, Request{Prompt: "a red fox"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(img.URI, "data:image/svg+xml;base64,"))

	icon, err := s.Generate(context.Background(), KindIcon, Request{Prompt: "weather"})
	require.NoError(t, err)
	assert.Equal(t, "✨", icon.Icon)

	video, err := s.Generate(context.Background(), KindVideo, Request{Prompt: "waves at dusk"})
	require.NoError(t, err)
	assert.Equal(t, "mock://video/waves-at-dusk", video.URI)
}

func TestServiceWrapsFailures(t *testing.T) {
	s := NewService(failingBackend{}, 100, 10, nil, nil)
	_, err := s.Generate(context.Background(), KindImage, Request{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindArtifactGeneration))
	assert.Contains(t, err.Error(), "quota exhausted")

	_, err = s.Generate(context.Background(), KindImage, Request{Prompt: "   "})
	assert.True(t, apperr.Is(err, apperr.KindArtifactGeneration))

	_, err = NewService(nil, 1, 1, nil, nil).Generate(context.Background(), KindIcon, Request{Prompt: "x"})
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestServiceThrottles(t *testing.T) {
	s := NewService(MockBackend{}, 0.001, 1, nil, nil)
	_, err := s.Generate(context.Background(), KindIcon, Request{Prompt: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Generate(ctx, KindIcon, Request{Prompt: "second"})
	assert.True(t, apperr.Is(err, apperr.KindArtifactGeneration))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Video ")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, k)

	_, err = ParseKind("audio")
	assert.Error(t, err)
}

func TestPollUntilDone(t *testing.T) {
	calls := 0
	uri, err := pollUntilDone(context.Background(), time.Millisecond, 4*time.Millisecond, func(context.Context) (bool, string, error) {
		calls++
		if calls < 3 {
			return false, "", nil
		}
		return true, "https://video.example/1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "https://video.example/1", uri)
	assert.Equal(t, 3, calls)
}

func TestPollUntilDoneHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pollUntilDone(ctx, 5*time.Millisecond, 10*time.Millisecond, func(context.Context) (bool, string, error) {
		return false, "", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFirstIcon(t *testing.T) {
	assert.Equal(t, "🌦️", firstIcon("  🌦️ weather\n"))
	assert.Equal(t, "📅", firstIcon("`📅`"))
	assert.Equal(t, "", firstIcon("   "))
}

func TestNewGeminiBackendRequiresKey(t *testing.T) {
	_, err := NewGeminiBackend(context.Background(), GeminiConfig{})
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}
