package rag

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize      = 500
	DefaultChunkOverlap   = 50
	DefaultMinChunkLength = 50
)

var ErrInvalidChunkConfig = errors.New("invalid chunk config")

// Span is a window of a document. Start and End are rune offsets, End
// exclusive.
type Span struct {
	Start int
	End   int
	Text  string
}

// ValidateChunking reports whether size and overlap describe a forward
// moving window.
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap %d must satisfy 0 <= overlap < %d", ErrInvalidChunkConfig, overlap, size)
	}
	return nil
}

// Split cuts text into windows of size runes advancing by size-overlap.
// Every window start in [0, len) is visited, so the last window may be
// shorter than size. A window is kept only when its trimmed length is
// greater than minLen; dropped windows are not merged into neighbours.
func Split(text string, size, overlap, minLen int) ([]Span, error) {
	if err := ValidateChunking(size, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := size - overlap
	var spans []Span
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunk := string(runes[start:end])
		if utf8.RuneCountInString(strings.TrimSpace(chunk)) <= minLen {
			continue
		}
		spans = append(spans, Span{Start: start, End: end, Text: chunk})
	}
	return spans, nil
}

// Windows returns the [start, end) rune ranges of overlapping windows over a
// text of n runes, stopping at the first window that reaches the end.
// Unlike Split it never drops a window.
func Windows(n, size, overlap int) ([][2]int, error) {
	if err := ValidateChunking(size, overlap); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	step := size - overlap
	var out [][2]int
	for start := 0; ; start += step {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
		if end == n {
			break
		}
	}
	return out, nil
}
