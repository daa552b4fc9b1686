package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/synthdesk/internal/reliability"
)

// HTTPGenerator forwards composed requests to a remote endpoint that streams
// server-sent events or newline-delimited JSON.
type HTTPGenerator struct {
	url    string
	strict bool
	client *http.Client
}

func NewHTTPGenerator(url string, strict bool) *HTTPGenerator {
	return &HTTPGenerator{
		url:    strings.TrimSpace(url),
		strict: strict,
		client: &http.Client{
			// Streams are bounded by the caller's context, not a client timeout.
			Timeout: 0,
		},
	}
}

// StatusError is a non-2xx response from the remote generator.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generator http status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying with backoff.
func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}

type httpChunk struct {
	Text      string     `json:"text"`
	Delta     string     `json:"delta"`
	Citations []Citation `json:"citations"`
}

func (c httpChunk) chunk() Chunk {
	text := c.Text
	if text == "" {
		text = c.Delta
	}
	return Chunk{Text: text, Citations: c.Citations}
}

func (g *HTTPGenerator) StreamContent(ctx context.Context, req Request, onChunk ChunkHandler) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream, application/x-ndjson")

	started := time.Now()
	res, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "text/event-stream"):
		err = g.consumeSSE(res.Body, onChunk)
	case strings.Contains(ct, "application/x-ndjson"):
		err = g.consumeNDJSON(res.Body, onChunk)
	default:
		err = g.consumeBody(res.Body, onChunk)
	}
	if err != nil {
		return fmt.Errorf("generator stream after %s: %w", time.Since(started).Round(time.Millisecond), err)
	}
	return nil
}

func (g *HTTPGenerator) consumeSSE(body io.Reader, onChunk ChunkHandler) error {
	scanner := newLineScanner(body)
	var data []string
	flush := func() (bool, error) {
		if len(data) == 0 {
			return false, nil
		}
		event := strings.Join(data, "\n")
		data = data[:0]
		if event == "[DONE]" {
			return true, nil
		}
		return false, g.deliver(event, onChunk)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "":
			done, err := flush()
			if err != nil || done {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	_, err := flush()
	return err
}

func (g *HTTPGenerator) consumeNDJSON(body io.Reader, onChunk ChunkHandler) error {
	scanner := newLineScanner(body)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.TrimSpace(line) == "[DONE]" {
			return nil
		}
		if err := g.deliver(line, onChunk); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}

// consumeBody handles endpoints that answer with a single JSON object or raw markup.
func (g *HTTPGenerator) consumeBody(body io.Reader, onChunk ChunkHandler) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil
	}
	return g.deliver(text, onChunk)
}

func (g *HTTPGenerator) deliver(payload string, onChunk ChunkHandler) error {
	chunk := Chunk{Text: payload}
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") || g.strict {
		var hc httpChunk
		if err := json.Unmarshal([]byte(trimmed), &hc); err != nil {
			if g.strict {
				return fmt.Errorf("invalid stream payload: %w", err)
			}
		} else {
			chunk = hc.chunk()
		}
	}
	if chunk.Text == "" && len(chunk.Citations) == 0 {
		return nil
	}
	if onChunk == nil {
		return nil
	}
	return onChunk(chunk)
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}
