// Package artifact generates images, videos and icons on demand. These are
// plain request/response calls; nothing here streams or touches the desktop.
package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/observability"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindIcon  Kind = "icon"
)

const defaultAspectRatio = "16:9"

// ParseKind validates a kind from a URL or message.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindImage, KindVideo, KindIcon:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported artifact kind %q", raw)
	}
}

type Request struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type Result struct {
	Kind Kind `json:"kind"`
	// URI is a data URI for images and a remote URI for videos.
	URI  string `json:"uri,omitempty"`
	Icon string `json:"icon,omitempty"`
}

// Backend performs the remote calls.
type Backend interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (string, error)
	GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error)
	GenerateIcon(ctx context.Context, prompt string) (string, error)
}

// Service throttles and normalizes artifact requests.
type Service struct {
	backend Backend
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewService(backend Backend, perSecond float64, burst int, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if perSecond <= 0 {
		perSecond = 0.5
	}
	if burst <= 0 {
		burst = 1
	}
	return &Service{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger.Named("artifact"),
		metrics: metrics,
	}
}

// Generate runs one artifact request. Every failure is an ArtifactGeneration
// error except a missing backend, which is a configuration error.
func (s *Service) Generate(ctx context.Context, kind Kind, req Request) (Result, error) {
	op := "artifact." + string(kind)
	if s.backend == nil {
		return Result{}, apperr.Errorf(apperr.KindConfiguration, op, "no artifact backend configured")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Result{}, apperr.Errorf(apperr.KindArtifactGeneration, op, "prompt is required")
	}
	aspect := strings.TrimSpace(req.AspectRatio)
	if aspect == "" {
		aspect = defaultAspectRatio
	}
	if err := s.limiter.Wait(ctx); err != nil {
		s.metrics.IncArtifact(string(kind), "throttled")
		return Result{}, apperr.New(apperr.KindArtifactGeneration, op, fmt.Errorf("rate limit: %w", err))
	}

	started := time.Now()
	res := Result{Kind: kind}
	var err error
	switch kind {
	case KindImage:
		res.URI, err = s.backend.GenerateImage(ctx, prompt, aspect)
	case KindVideo:
		res.URI, err = s.backend.GenerateVideo(ctx, prompt, aspect)
	case KindIcon:
		res.Icon, err = s.backend.GenerateIcon(ctx, prompt)
	default:
		err = fmt.Errorf("unsupported artifact kind %q", kind)
	}
	if err != nil {
		s.metrics.IncArtifact(string(kind), "error")
		s.logger.Warn("artifact generation failed",
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return Result{}, apperr.New(apperr.KindArtifactGeneration, op, err)
	}

	s.metrics.IncArtifact(string(kind), "success")
	s.logger.Debug("artifact generated", zap.String("kind", string(kind)), zap.Duration("elapsed", time.Since(started)))
	return res, nil
}
