package qa

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"docqa/internal/model"
	"docqa/internal/ner"
	"docqa/internal/rag"
)

// Span is one extracted answer. Start and End are rune offsets into the
// text passed to Extract.
type Span struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

// Extractor selects answer spans for question inside text, best first.
// Scores are in [0, 1].
type Extractor interface {
	Extract(ctx context.Context, question, text string, topK int) ([]Span, error)
}

// LexicalExtractor is a local extractive model. It ranks the sentences of
// the context by how many question terms they contain and, when the
// question asks for a typed value such as an amount or a date, narrows the
// answer to the matching value inside the best sentence.
type LexicalExtractor struct {
	entities *ner.PatternRecognizer
}

func NewLexicalExtractor() *LexicalExtractor {
	return &LexicalExtractor{entities: ner.NewPatternRecognizer()}
}

func (x *LexicalExtractor) Extract(ctx context.Context, question, text string, topK int) ([]Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 1
	}
	terms := uniqueTerms(question)
	if len(terms) == 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	want := expectedLabels(question)

	var spans []Span
	for _, s := range sentences(text) {
		matched := matchTerms(terms, s.Text)
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(terms)+1)
		span := Span{Answer: strings.TrimSpace(s.Text), Score: score}
		span.Start, span.End = trimmedBounds(s)

		if ent, ok := x.typedValue(s.Text, want); ok {
			span = Span{
				Answer: ent.Text,
				Score:  (float64(matched) + 0.5) / float64(len(terms)+1),
				Start:  s.Start + ent.Start,
				End:    s.Start + ent.End,
			}
		}
		spans = append(spans, span)
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Score > spans[j].Score })
	if len(spans) > topK {
		spans = spans[:topK]
	}
	return spans, nil
}

func (x *LexicalExtractor) typedValue(sentence string, labels []string) (model.Entity, bool) {
	if len(labels) == 0 {
		return model.Entity{}, false
	}
	found := x.entities.Entities(sentence)
	for _, label := range labels {
		for _, e := range found {
			if e.Label == label {
				return e, true
			}
		}
	}
	return model.Entity{}, false
}

// expectedLabels maps question cues to the entity labels that would answer
// them, most specific first.
func expectedLabels(question string) []string {
	q := " " + strings.ToLower(question) + " "
	has := func(cues ...string) bool {
		for _, c := range cues {
			if strings.Contains(q, c) {
				return true
			}
		}
		return false
	}

	switch {
	case has("percent", "percentage", "%", " rate "):
		return []string{ner.LabelPercent, ner.LabelCardinal}
	case has("how much"):
		return []string{ner.LabelMoney, ner.LabelCardinal}
	case has("how many", "number of"):
		return []string{ner.LabelCardinal}
	case has("how long", "duration"):
		return []string{ner.LabelDate, ner.LabelTime}
	case has("when", " date", "deadline", "what day", "what year"):
		return []string{ner.LabelDate}
	case has("what time"):
		return []string{ner.LabelTime}
	case has("amount", " cost", "price", " fee", "salary", " pay ", "payment", "budget", "worth"):
		return []string{ner.LabelMoney, ner.LabelCardinal}
	case has("email", "e-mail"):
		return []string{ner.LabelEmail}
	case has("website", " url", " link"):
		return []string{ner.LabelURL}
	}
	return nil
}

func uniqueTerms(question string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range rag.Tokenize(question) {
		stem := stemOf(tok)
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}
		out = append(out, stem)
	}
	return out
}

func matchTerms(terms []string, sentence string) int {
	present := make(map[string]struct{})
	for _, tok := range rag.Tokenize(sentence) {
		present[stemOf(tok)] = struct{}{}
	}
	n := 0
	for _, t := range terms {
		if _, ok := present[t]; ok {
			n++
		}
	}
	return n
}

// stemOf strips a few English inflections so "payments" matches "payment".
func stemOf(tok string) string {
	for _, suffix := range []string{"ing", "ies", "es", "ed", "s"} {
		if strings.HasSuffix(tok, suffix) && utf8.RuneCountInString(tok)-len(suffix) >= 3 {
			if suffix == "ies" {
				return strings.TrimSuffix(tok, suffix) + "y"
			}
			return strings.TrimSuffix(tok, suffix)
		}
	}
	return tok
}

type sentence struct {
	Start int // rune offset
	Text  string
}

// sentences splits text after ., ! or ? followed by whitespace, and at blank
// lines. Offsets are rune offsets into text.
func sentences(text string) []sentence {
	runes := []rune(text)
	var out []sentence
	start := 0
	flush := func(end int) {
		if end > start && strings.TrimSpace(string(runes[start:end])) != "" {
			out = append(out, sentence{Start: start, Text: string(runes[start:end])})
		}
		start = end
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case (r == '.' || r == '!' || r == '?') && (next == 0 || unicode.IsSpace(next)):
			flush(i + 1)
		case r == '\n' && next == '\n':
			flush(i + 1)
		}
	}
	flush(len(runes))
	return out
}

func trimmedBounds(s sentence) (int, int) {
	runes := []rune(s.Text)
	lo, hi := 0, len(runes)
	for lo < hi && unicode.IsSpace(runes[lo]) {
		lo++
	}
	for hi > lo && unicode.IsSpace(runes[hi-1]) {
		hi--
	}
	return s.Start + lo, s.Start + hi
}
