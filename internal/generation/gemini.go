package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ent0n29/synthdesk/internal/apperr"
)

// GeminiGenerator streams screens from the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, apperr.Errorf(apperr.KindConfiguration, "generation.gemini", "GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "generation.gemini", fmt.Errorf("failed to create genai client: %w", err))
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) StreamContent(ctx context.Context, req Request, onChunk ChunkHandler) error {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemDirective}},
		},
	}
	if req.WebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt(), genai.RoleUser)}

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		chunk, err := chunkFromResponse(resp)
		if err != nil {
			return err
		}
		if chunk.Text == "" && len(chunk.Citations) == 0 {
			continue
		}
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return err
			}
		}
	}
	return nil
}

var errBlocked = errors.New("response blocked")

// chunkFromResponse extracts visible text and grounding sources. Thought parts are skipped.
func chunkFromResponse(resp *genai.GenerateContentResponse) (Chunk, error) {
	var chunk Chunk
	if resp == nil {
		return chunk, nil
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return chunk, fmt.Errorf("%w: %s %s", errBlocked, fb.BlockReason, fb.BlockReasonMessage)
	}
	if len(resp.Candidates) == 0 {
		return chunk, nil
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return chunk, fmt.Errorf("%w: finish reason %s", errBlocked, cand.FinishReason)
	}

	if cand.Content != nil {
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
		chunk.Text = b.String()
	}
	if gm := cand.GroundingMetadata; gm != nil {
		for _, gc := range gm.GroundingChunks {
			if gc == nil || gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			chunk.Citations = append(chunk.Citations, Citation{URI: gc.Web.URI, Title: gc.Web.Title})
		}
	}
	return chunk, nil
}
