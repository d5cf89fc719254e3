// Package ner finds named entities in text. The Recognizer interface is the
// boundary to an entity model; PatternRecognizer is the local rule based
// implementation used when no model service is configured.
package ner

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"

	"docqa/internal/model"
)

const DefaultWindow = 50000

var ErrUnknownFormat = errors.New("unknown highlight format")

type Result struct {
	Text     string         `json:"text"`
	Entities []model.Entity `json:"entities"`
}

type Recognizer interface {
	HighlightEntities(ctx context.Context, text string) (Result, error)
}

// ExtractChunked runs r over consecutive windows of text, each at most
// window runes, and shifts entity offsets back to positions in text.
func ExtractChunked(ctx context.Context, r Recognizer, text string, window int) ([]model.Entity, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	runes := []rune(text)
	if len(runes) <= window {
		res, err := r.HighlightEntities(ctx, text)
		if err != nil {
			return nil, err
		}
		return res.Entities, nil
	}

	var all []model.Entity
	for offset := 0; offset < len(runes); offset += window {
		end := min(offset+window, len(runes))
		res, err := r.HighlightEntities(ctx, string(runes[offset:end]))
		if err != nil {
			return nil, fmt.Errorf("extract entities at offset %d failed: %w", offset, err)
		}
		for _, ent := range res.Entities {
			ent.Start += offset
			ent.End += offset
			all = append(all, ent)
		}
	}
	return all, nil
}

// Group collects entity texts by label, keeping first-seen order.
func Group(entities []model.Entity) map[string][]string {
	out := make(map[string][]string)
	for _, e := range entities {
		out[e.Label] = append(out[e.Label], e.Text)
	}
	return out
}

// Render marks entities inside text. Supported formats are "html" and
// "markdown". Offsets are rune offsets into text.
func Render(text string, entities []model.Entity, format string) (string, error) {
	var mark func(e model.Entity, span string) string
	escape := func(s string) string { return s }
	switch format {
	case "html":
		escape = html.EscapeString
		mark = func(e model.Entity, span string) string {
			tag := strings.ReplaceAll(strings.ToLower(e.Label), "_", "-")
			return fmt.Sprintf(`<mark class="entity %s" title="%s">%s</mark>`, tag, e.Label, html.EscapeString(span))
		}
	case "markdown":
		mark = func(e model.Entity, span string) string {
			return fmt.Sprintf("**%s** (%s)", span, e.Label)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	sorted := make([]model.Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	runes := []rune(text)
	var b strings.Builder
	pos := 0
	for _, e := range sorted {
		if e.Start < pos || e.End > len(runes) || e.Start >= e.End {
			continue
		}
		b.WriteString(escape(string(runes[pos:e.Start])))
		b.WriteString(mark(e, string(runes[e.Start:e.End])))
		pos = e.End
	}
	b.WriteString(escape(string(runes[pos:])))
	return b.String(), nil
}
