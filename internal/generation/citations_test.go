package generation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCitationSetDedupKeepsFirstTitle(t *testing.T) {
	var s citationSet
	s.Add(Citation{URI: "https://a.example", Title: "First"})
	s.Add(Citation{URI: "https://b.example"})
	s.Add(Citation{URI: "https://a.example", Title: "Second"})
	s.Add(Citation{URI: "  "})

	got := s.List()
	require.Len(t, got, 2)
	assert.Equal(t, Citation{URI: "https://a.example", Title: "First"}, got[0], "first title is kept")
	assert.Equal(t, "https://b.example", got[1].URI, "insertion order")
}

func TestCitationBlockEscapesAndFallsBackToURI(t *testing.T) {
	var s citationSet
	s.Add(Citation{URI: "https://a.example/?q=1&r=2", Title: "<b>Tom & Jerry</b>"})
	s.Add(Citation{URI: "https://b.example"})

	block := s.Block()
	assert.Regexp(t, `^<div class="llm-sources">`, block)
	assert.Contains(t, block, "&lt;b&gt;Tom &amp; Jerry&lt;/b&gt;")
	assert.Contains(t, block, `href="https://a.example/?q=1&amp;r=2"`)
	assert.Contains(t, block, `rel="noopener noreferrer">https://b.example</a>`, "untitled source shows its URI")
}

func TestErrorBlockEscapesDetail(t *testing.T) {
	block := ErrorBlock(errors.New(`bad <thing>`))
	assert.Contains(t, block, "bad &lt;thing&gt;")
	assert.Contains(t, block, `class="llm-error"`)
}
