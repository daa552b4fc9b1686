package generation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/interaction"
	"github.com/ent0n29/synthdesk/internal/observability"
)

// Options tunes request composition.
type Options struct {
	PreviousContentBudget int
	WebSearchApps         []string
}

// Input is what a single generation is seeded with.
type Input struct {
	// History is most recent first; History[0] is the current interaction.
	History []interaction.Record
	MaxLen  int
	// PreviousContent is the markup of the screen being replaced, nil on app open.
	PreviousContent *string
	AppID           string
}

var errNoContent = errors.New("generator returned no content")

// IsRetryable reports whether regenerating the same screen may succeed.
// Rejected requests and blocked or empty responses will fail the same way.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return !errors.Is(err, errBlocked) && !errors.Is(err, errNoContent)
}

// Orchestrator drives one streaming generation at a time. Callers serialize
// Start; the orchestrator does not defend against concurrent streams.
type Orchestrator struct {
	generator Generator
	opts      Options
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewOrchestrator(generator Generator, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PreviousContentBudget <= 0 {
		opts.PreviousContentBudget = 4000
	}
	return &Orchestrator{
		generator: generator,
		opts:      opts,
		logger:    logger.Named("generation"),
		metrics:   metrics,
	}
}

// Start composes the request and streams fragments on the returned channel,
// which is closed when the generation ends. Failures never surface as an
// error here once streaming began: they arrive as a final FragmentError.
// Cancelling ctx ends the stream quietly.
func (o *Orchestrator) Start(ctx context.Context, in Input) (<-chan Fragment, error) {
	if len(in.History) == 0 {
		return nil, apperr.Errorf(apperr.KindEmptyHistory, "generation.start", "interaction history is empty")
	}
	if o.generator == nil {
		return nil, apperr.Errorf(apperr.KindConfiguration, "generation.start", "no content generator configured")
	}
	req := o.composeRequest(in)
	out := make(chan Fragment, 16)
	go o.run(ctx, req, out)
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, out chan<- Fragment) {
	defer close(out)

	started := time.Now()
	var (
		citations citationSet
		fragments int
	)
	err := o.generator.StreamContent(ctx, req, func(chunk Chunk) error {
		for _, c := range chunk.Citations {
			citations.Add(c)
		}
		if chunk.Text == "" {
			return nil
		}
		if fragments == 0 {
			o.metrics.ObserveFirstFragment(time.Since(started))
		}
		fragments++
		o.metrics.IncFragment()
		return emit(ctx, out, Fragment{Kind: FragmentText, Text: chunk.Text})
	})
	if err == nil && fragments == 0 {
		err = errNoContent
	}

	if err != nil {
		if ctx.Err() != nil {
			o.logger.Debug("generation superseded",
				zap.String("app_id", req.AppID),
				zap.Int("fragments", fragments))
			o.metrics.IncGeneration("superseded")
			return
		}
		err = apperr.New(apperr.KindStreamTransport, "generation.stream", err)
		o.logger.Error("generation failed",
			zap.String("app_id", req.AppID),
			zap.Int("fragments", fragments),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		o.metrics.IncGeneration("error")
		_ = emit(ctx, out, Fragment{Kind: FragmentError, Text: ErrorBlock(err), Err: err})
		return
	}

	if citations.Len() > 0 {
		if emit(ctx, out, Fragment{Kind: FragmentCitations, Text: citations.Block()}) != nil {
			return
		}
	}
	o.metrics.IncGeneration("success")
	o.metrics.ObserveStage(observability.StageGenerationTotal, time.Since(started))
	o.logger.Debug("generation complete",
		zap.String("app_id", req.AppID),
		zap.Int("fragments", fragments),
		zap.Int("citations", citations.Len()),
		zap.Bool("web_search", req.WebSearch),
		zap.Duration("elapsed", time.Since(started)))
}

func emit(ctx context.Context, out chan<- Fragment, f Fragment) error {
	select {
	case out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) isWebSearchApp(appID string) bool {
	if appID == "" {
		return false
	}
	for _, app := range o.opts.WebSearchApps {
		if app == appID {
			return true
		}
	}
	return false
}

// Collect drains a fragment stream into its final markup and terminal error.
func Collect(stream <-chan Fragment) (string, error) {
	var acc Accumulator
	for f := range stream {
		acc.Add(f)
	}
	return acc.Content(), acc.Err()
}
