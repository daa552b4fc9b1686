package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/ent0n29/synthdesk/internal/interaction"
)

const (
	currentValuePreviewRunes = 100
	historyValuePreviewRunes = 50
	truncationMarker         = "…"
)

const systemDirectiveTemplate = `You are the operating system of a generative desktop. Each response is the HTML for the content area of the currently open window.
Rules:
- Output only HTML for the content area: no <html>, <head> or <body> wrappers and no markdown fences.
- Every interactive element needs a data-interaction-id attribute with a unique, descriptive id. Add data-interaction-type when the element is not a plain click, and data-value-from="<input id>" when a click should carry an input's value.
- Prefer the llm-container, llm-title, llm-text, llm-button and llm-input classes; keep extra styling inline.
- Stay consistent with the previous screen when the user is navigating within the same app.
- You receive up to %d of the user's most recent interactions, the current one first in importance. Use them to keep the experience coherent.`

// SystemDirective returns the fixed directive parameterized by the history length.
func SystemDirective(maxLen int) string {
	if maxLen < 1 {
		maxLen = 1
	}
	return fmt.Sprintf(systemDirectiveTemplate, maxLen)
}

// composeRequest builds the generator request for history (most recent first).
func (o *Orchestrator) composeRequest(in Input) Request {
	current := in.History[0]
	req := Request{
		AppID:              in.AppID,
		SystemDirective:    SystemDirective(in.MaxLen),
		InteractionSummary: interactionSummary(current),
		HistorySegment:     historySegment(in.History[1:], in.MaxLen),
		CurrentRecord:      recordJSON(current),
		WebSearch:          current.Kind != interaction.KindAppOpen && o.isWebSearchApp(in.AppID),
	}
	if in.PreviousContent != nil {
		req.PreviousContent = previousContentSnippet(*in.PreviousContent, o.opts.PreviousContentBudget)
	}
	return req
}

func interactionSummary(current interaction.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current user interaction: clicked on '%s' (type: %s, id: %s).",
		current.DisplayName(), orNA(string(current.Kind)), orNA(current.ID))
	if current.Payload != "" {
		fmt.Fprintf(&b, " Associated value: '%s'.", interaction.Preview(current.Payload, currentValuePreviewRunes))
	}
	b.WriteString("\n")
	if current.AppContext != "" {
		fmt.Fprintf(&b, "Current app context: '%s'.", current.AppContext)
	} else {
		b.WriteString("No specific app context for current interaction.")
	}
	return b.String()
}

// historySegment numbers up to maxLen-1 prior interactions, oldest first.
func historySegment(past []interaction.Record, maxLen int) string {
	limit := maxLen - 1
	if limit <= 0 || len(past) == 0 {
		return ""
	}
	if len(past) > limit {
		past = past[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Previous user interactions (up to %d most recent, oldest first; all happened before the current one):", limit)
	for i := len(past) - 1; i >= 0; i-- {
		rec := past[i]
		app := "none"
		if rec.AppContext != "" {
			app = rec.AppContext
		}
		fmt.Fprintf(&b, "\n%d. (App: %s) Clicked '%s' (type: %s, id: %s)", len(past)-i, app, rec.DisplayName(), orNA(string(rec.Kind)), orNA(rec.ID))
		if rec.Payload != "" {
			fmt.Fprintf(&b, " with value '%s'", interaction.Preview(rec.Payload, historyValuePreviewRunes))
		}
		b.WriteString(".")
	}
	return b.String()
}

func recordJSON(rec interaction.Record) string {
	raw, err := json.MarshalIndent(rec, "", " ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// previousContentSnippet strips <script> elements and caps the markup at budget runes.
func previousContentSnippet(markup string, budget int) string {
	markup = strings.TrimSpace(markup)
	if markup == "" {
		return ""
	}
	stripped := stripScripts(markup)
	if budget > 0 && utf8.RuneCountInString(stripped) > budget {
		stripped = string([]rune(stripped)[:budget]) + truncationMarker
	}
	return stripped
}

func stripScripts(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	doc.Find("script").Remove()
	head, err := doc.Find("head").Html()
	if err != nil {
		return markup
	}
	body, err := doc.Find("body").Html()
	if err != nil {
		return markup
	}
	return strings.TrimSpace(head + body)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
