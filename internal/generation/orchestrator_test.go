package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/interaction"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func appOpenInput(appID string) Input {
	return Input{
		History: []interaction.Record{interaction.NewRecord(appID, interaction.KindAppOpen, appID, "", appID)},
		MaxLen:  10,
		AppID:   appID,
	}
}

func TestOrchestratorAccumulatesFragmentsInOrder(t *testing.T) {
	gen := NewScriptedGenerator(func(Request) ([]Chunk, error) {
		return TextChunks("<div>", "hello", "</div>"), nil
	})
	o := NewOrchestrator(gen, Options{}, nil, nil)

	stream, err := o.Start(context.Background(), appOpenInput("calendar_app"))
	require.NoError(t, err)

	var texts []string
	for f := range stream {
		require.Equal(t, FragmentText, f.Kind)
		texts = append(texts, f.Text)
	}
	assert.Equal(t, []string{"<div>", "hello", "</div>"}, texts)
	assert.Equal(t, 1, gen.Calls())
}

func TestOrchestratorRejectsEmptyHistory(t *testing.T) {
	gen := NewMockGenerator()
	o := NewOrchestrator(gen, Options{}, nil, nil)

	_, err := o.Start(context.Background(), Input{MaxLen: 10})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindEmptyHistory))
	assert.Zero(t, gen.Calls(), "no remote call for an empty history")
}

func TestOrchestratorWithoutGeneratorIsConfigurationError(t *testing.T) {
	o := NewOrchestrator(nil, Options{}, nil, nil)
	_, err := o.Start(context.Background(), appOpenInput("notes_app"))
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestOrchestratorEmitsErrorFragmentLast(t *testing.T) {
	gen := NewScriptedGenerator(func(Request) ([]Chunk, error) {
		return TextChunks("<div>partial"), errors.New("connection reset")
	})
	o := NewOrchestrator(gen, Options{}, nil, nil)

	stream, err := o.Start(context.Background(), appOpenInput("notes_app"))
	require.NoError(t, err)

	content, err := Collect(stream)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStreamTransport))
	assert.True(t, strings.HasPrefix(content, "<div>partial"), "partial output is preserved")
	assert.Contains(t, content, "connection reset")
	assert.Contains(t, content, `class="llm-error"`)
}

func TestOrchestratorEmptyStreamIsError(t *testing.T) {
	gen := NewScriptedGenerator(func(Request) ([]Chunk, error) { return nil, nil })
	o := NewOrchestrator(gen, Options{}, nil, nil)

	stream, err := o.Start(context.Background(), appOpenInput("notes_app"))
	require.NoError(t, err)
	_, err = Collect(stream)
	assert.True(t, apperr.Is(err, apperr.KindStreamTransport))
}

func TestIsRetryableClassifiesStreamFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "overloaded", err: &StatusError{StatusCode: 503}, want: true},
		{name: "bad request", err: &StatusError{StatusCode: 400}, want: false},
		{name: "blocked", err: errBlocked, want: false},
		{name: "empty", err: errNoContent, want: false},
		{name: "reset", err: errors.New("connection reset by peer"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := tt.err
			if wrapped != nil {
				wrapped = apperr.New(apperr.KindStreamTransport, "generation.stream", tt.err)
			}
			assert.Equal(t, tt.want, IsRetryable(wrapped))
		})
	}
}

func TestOrchestratorAppendsCitationsAfterText(t *testing.T) {
	gen := NewScriptedGenerator(func(Request) ([]Chunk, error) {
		return []Chunk{
			{Text: "<p>news</p>", Citations: []Citation{{URI: "https://a.example", Title: "A"}}},
			{Citations: []Citation{{URI: "https://a.example", Title: "A again"}, {URI: "https://b.example", Title: "B"}}},
		}, nil
	})
	o := NewOrchestrator(gen, Options{WebSearchApps: []string{"news_app"}}, nil, nil)
	in := Input{
		History: []interaction.Record{interaction.NewRecord("headlines", "", "Headlines", "", "news_app")},
		MaxLen:  10,
		AppID:   "news_app",
	}

	stream, err := o.Start(context.Background(), in)
	require.NoError(t, err)

	var frags []Fragment
	for f := range stream {
		frags = append(frags, f)
	}
	require.Len(t, frags, 2)
	assert.Equal(t, FragmentText, frags[0].Kind)
	assert.Equal(t, FragmentCitations, frags[1].Kind)
	assert.Equal(t, 1, strings.Count(frags[1].Text, "https://a.example"))
	assert.Less(t, strings.Index(frags[1].Text, ">A<"), strings.Index(frags[1].Text, ">B<"))
	assert.True(t, gen.Requests()[0].WebSearch)
}

func TestOrchestratorCancelEndsStreamQuietly(t *testing.T) {
	step := make(chan struct{})
	gen := NewScriptedGenerator(func(Request) ([]Chunk, error) {
		return TextChunks("a", "b", "c"), nil
	})
	gen.Step = step
	o := NewOrchestrator(gen, Options{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := o.Start(ctx, appOpenInput("notes_app"))
	require.NoError(t, err)

	step <- struct{}{}
	first := <-stream
	assert.Equal(t, "a", first.Text)
	cancel()

	select {
	case f, ok := <-stream:
		if ok {
			assert.NotEqual(t, FragmentError, f.Kind, "superseded streams never report an error")
			for range stream {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not closed after cancel")
	}
}
