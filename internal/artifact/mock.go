package artifact

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"strings"
)

// MockBackend returns deterministic placeholders for offline runs.
type MockBackend struct{}

func (MockBackend) GenerateImage(ctx context.Context, prompt, aspectRatio string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w, h := 160, 90
	if aspectRatio == "1:1" {
		h = 160
	}
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="100%%" height="100%%" fill="#dde"/><text x="8" y="20" font-size="12">%s</text></svg>`,
		w, h, html.EscapeString(truncate(prompt, 24)))
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)), nil
}

func (MockBackend) GenerateVideo(ctx context.Context, prompt, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "mock://video/" + strings.ReplaceAll(truncate(prompt, 32), " ", "-"), nil
}

func (MockBackend) GenerateIcon(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "✨", nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		r = r[:max]
	}
	return string(r)
}
