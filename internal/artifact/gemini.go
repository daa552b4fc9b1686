package artifact

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"google.golang.org/genai"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/reliability"
)

type GeminiConfig struct {
	APIKey          string
	ImageModel      string
	VideoModel      string
	IconModel       string
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	VideoTimeout    time.Duration
}

// GeminiBackend generates artifacts with the Gemini API.
type GeminiBackend struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, apperr.Errorf(apperr.KindConfiguration, "artifact.gemini", "GEMINI_API_KEY is not set")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollMaxInterval < cfg.PollInterval {
		cfg.PollMaxInterval = cfg.PollInterval
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = 6 * time.Minute
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "artifact.gemini", fmt.Errorf("failed to create genai client: %w", err))
	}
	return &GeminiBackend{client: client, cfg: cfg}, nil
}

func (b *GeminiBackend) GenerateImage(ctx context.Context, prompt, aspectRatio string) (string, error) {
	resp, err := b.client.Models.GenerateImages(ctx, b.cfg.ImageModel, prompt, &genai.GenerateImagesConfig{
		AspectRatio:    aspectRatio,
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return "", errors.New("generate image: empty response")
	}
	img := resp.GeneratedImages[0].Image
	if len(img.ImageBytes) == 0 {
		if reason := resp.GeneratedImages[0].RAIFilteredReason; reason != "" {
			return "", fmt.Errorf("generate image: filtered: %s", reason)
		}
		return "", errors.New("generate image: no image bytes")
	}
	return dataURI(img.MIMEType, img.ImageBytes), nil
}

func (b *GeminiBackend) GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.VideoTimeout)
	defer cancel()

	op, err := b.client.Models.GenerateVideos(ctx, b.cfg.VideoModel, prompt, nil, &genai.GenerateVideosConfig{
		AspectRatio: aspectRatio,
	})
	if err != nil {
		return "", fmt.Errorf("generate video: %w", err)
	}

	return pollUntilDone(ctx, b.cfg.PollInterval, b.cfg.PollMaxInterval, func(ctx context.Context) (bool, string, error) {
		if op.Done {
			return true, videoURI(op)
		}
		next, err := b.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return false, "", fmt.Errorf("poll video operation: %w", err)
		}
		op = next
		if !op.Done {
			return false, "", nil
		}
		uri, err := videoURI(op)
		return true, uri, err
	})
}

func videoURI(op *genai.GenerateVideosOperation) (string, error) {
	if len(op.Error) > 0 {
		return "", fmt.Errorf("video operation failed: %v", op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0].Video == nil || op.Response.GeneratedVideos[0].Video.URI == "" {
		return "", errors.New("video operation finished without a video")
	}
	return op.Response.GeneratedVideos[0].Video.URI, nil
}

func (b *GeminiBackend) GenerateIcon(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(
		"Reply with exactly one emoji that best represents the following and nothing else: "+prompt,
		genai.RoleUser,
	)}
	resp, err := b.client.Models.GenerateContent(ctx, b.cfg.IconModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate icon: %w", err)
	}
	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}
	icon := firstIcon(text.String())
	if icon == "" {
		return "", errors.New("generate icon: empty response")
	}
	return icon, nil
}

// pollFunc reports whether the operation is done and its result.
type pollFunc func(ctx context.Context) (done bool, uri string, err error)

// pollUntilDone calls poll with exponential backoff until it finishes or ctx ends.
func pollUntilDone(ctx context.Context, base, max time.Duration, poll pollFunc) (string, error) {
	for attempt := 0; ; attempt++ {
		done, uri, err := poll(ctx)
		if err != nil {
			return "", err
		}
		if done {
			return uri, nil
		}
		timer := time.NewTimer(reliability.ExponentialBackoff(attempt, base, max))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("video generation: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func dataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// firstIcon keeps the first whitespace-delimited token, capped at a few runes
// so joined emoji sequences survive.
func firstIcon(text string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(text), unicode.IsSpace)
	if len(fields) == 0 {
		return ""
	}
	runes := []rune(strings.Trim(fields[0], "`'\".,"))
	if len(runes) > 8 {
		runes = runes[:8]
	}
	return string(runes)
}
