package ner

import (
	"context"
	"regexp"
	"sort"
	"unicode/utf8"

	"docqa/internal/model"
)

const (
	LabelMoney    = "MONEY"
	LabelPercent  = "PERCENT"
	LabelDate     = "DATE"
	LabelTime     = "TIME"
	LabelEmail    = "EMAIL"
	LabelURL      = "URL"
	LabelCardinal = "CARDINAL"
)

var labelDescriptions = map[string]string{
	LabelMoney:    "Monetary values, including unit",
	LabelPercent:  `Percentage, including "%"`,
	LabelDate:     "Absolute or relative dates or periods",
	LabelTime:     "Times smaller than a day",
	LabelEmail:    "Email addresses",
	LabelURL:      "Web addresses",
	LabelCardinal: "Numerals that do not fall under another type",
}

const month = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

type pattern struct {
	label string
	re    *regexp.Regexp
}

// Patterns are listed by priority. Among overlapping matches the earliest
// start wins, then the longest, then the earlier pattern.
var patterns = []pattern{
	{LabelEmail, regexp.MustCompile(`(?i)\b[\w.+-]+@[\w-]+(?:\.[\w-]+)+\b`)},
	{LabelURL, regexp.MustCompile(`(?i)\bhttps?://[^\s<>"]+[^\s<>".,;:!?)]`)},
	{LabelMoney, regexp.MustCompile(`(?i)[$€£¥]\s?\d+(?:,\d{3})*(?:\.\d+)?(?:\s?(?:million|billion|thousand|bn|[mk])\b)?|\b\d+(?:,\d{3})*(?:\.\d+)?\s?(?:million\s|billion\s)?(?:dollars|usd|eur|euros|pounds|gbp)\b`)},
	{LabelPercent, regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:%|percent\b)`)},
	{LabelDate, regexp.MustCompile(`(?i)\b` + month + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b|\b\d{1,2}(?:st|nd|rd|th)?\s+` + month + `\.?,?\s+\d{4}\b|\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b` + month + `\s+\d{4}\b|\b\d+\s+(?:business\s+)?(?:days?|weeks?|months?|years?)\b`)},
	{LabelTime, regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?::\d{2})?\s?(?:[ap]\.?m\.?)?|\b\d{1,2}\s?[ap]\.?m\.?\b|\b\d+\s+(?:hours?|minutes?|seconds?)\b`)},
	{LabelCardinal, regexp.MustCompile(`\b\d+(?:,\d{3})*(?:\.\d+)?\b`)},
}

// PatternRecognizer finds entities with regular expressions. It is
// stateless and safe for concurrent use.
type PatternRecognizer struct{}

func NewPatternRecognizer() *PatternRecognizer {
	return &PatternRecognizer{}
}

func (p *PatternRecognizer) HighlightEntities(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Text: text, Entities: p.Entities(text)}, nil
}

// Entities returns non-overlapping entities ordered by start offset.
// Offsets are rune offsets.
func (p *PatternRecognizer) Entities(text string) []model.Entity {
	type match struct {
		start, end int // byte offsets
		prio       int
	}
	var found []match
	for prio, pat := range patterns {
		for _, loc := range pat.re.FindAllStringIndex(text, -1) {
			found = append(found, match{start: loc[0], end: loc[1], prio: prio})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if la, lb := a.end-a.start, b.end-b.start; la != lb {
			return la > lb
		}
		return a.prio < b.prio
	})

	var out []model.Entity
	lastEnd := 0
	for _, m := range found {
		if m.start < lastEnd {
			continue
		}
		label := patterns[m.prio].label
		out = append(out, model.Entity{
			Text:             text[m.start:m.end],
			Label:            label,
			Start:            utf8.RuneCountInString(text[:m.start]),
			End:              utf8.RuneCountInString(text[:m.end]),
			LabelDescription: labelDescriptions[label],
		})
		lastEnd = m.end
	}
	return out
}

// Match returns the entities of the given label found in text.
func (p *PatternRecognizer) Match(label, text string) []model.Entity {
	var out []model.Entity
	for _, e := range p.Entities(text) {
		if e.Label == label {
			out = append(out, e)
		}
	}
	return out
}

// Labels returns the supported labels and their descriptions.
func Labels() map[string]string {
	out := make(map[string]string, len(labelDescriptions))
	for k, v := range labelDescriptions {
		out[k] = v
	}
	return out
}

func Describe(label string) string {
	return labelDescriptions[label]
}
