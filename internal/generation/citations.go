package generation

import (
	"html"
	"strings"
)

// citationSet keys sources by URI. The first title seen for a URI wins and
// sources keep the order in which they were first seen.
type citationSet struct {
	order  []string
	titles map[string]string
}

func (s *citationSet) Add(c Citation) {
	uri := strings.TrimSpace(c.URI)
	if uri == "" {
		return
	}
	if s.titles == nil {
		s.titles = make(map[string]string)
	}
	if _, ok := s.titles[uri]; ok {
		return
	}
	s.order = append(s.order, uri)
	s.titles[uri] = strings.TrimSpace(c.Title)
}

func (s *citationSet) Len() int { return len(s.order) }

func (s *citationSet) List() []Citation {
	out := make([]Citation, 0, len(s.order))
	for _, uri := range s.order {
		out = append(out, Citation{URI: uri, Title: s.titles[uri]})
	}
	return out
}

// Block renders the sources list appended after a grounded stream.
func (s *citationSet) Block() string {
	var b strings.Builder
	b.WriteString(`<div class="llm-sources"><h4 class="llm-title">Sources</h4><ul>`)
	for _, c := range s.List() {
		title := c.Title
		if title == "" {
			title = c.URI
		}
		b.WriteString(`<li><a href="`)
		b.WriteString(html.EscapeString(c.URI))
		b.WriteString(`" target="_blank" rel="noopener noreferrer">`)
		b.WriteString(html.EscapeString(title))
		b.WriteString(`</a></li>`)
	}
	b.WriteString(`</ul></div>`)
	return b.String()
}

// ErrorBlock renders the terminal block shown when a stream fails.
func ErrorBlock(err error) string {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return `<div class="llm-error" role="alert"><p class="llm-title">This screen could not be generated.</p><p class="llm-text">` +
		html.EscapeString(detail) +
		`</p><p class="llm-text">Try the action again.</p></div>`
}
