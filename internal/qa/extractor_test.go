package qa

import (
	"context"
	"testing"
)

func TestLexicalExtractor(t *testing.T) {
	t.Parallel()

	text := "This agreement starts on March 3, 2024. The monthly fee is $1,200. " +
		"Late payments accrue interest at 2.5% per month. Either party may terminate with 30 days notice."

	tests := []struct {
		question string
		want     string
	}{
		{"What is the monthly fee?", "$1,200"},
		{"When does the agreement start?", "March 3, 2024"},
		{"What interest rate applies to late payments?", "2.5%"},
		{"How long is the notice period to terminate?", "30 days"},
		{"Who may terminate?", "Either party may terminate with 30 days notice."},
	}

	x := NewLexicalExtractor()
	runes := []rune(text)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.question, func(t *testing.T) {
			t.Parallel()
			spans, err := x.Extract(context.Background(), tt.question, text, 1)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			s := spans[0]
			if s.Answer != tt.want {
				t.Errorf("answer = %q, want %q", s.Answer, tt.want)
			}
			if s.Score <= 0 || s.Score > 1 {
				t.Errorf("score %v outside (0,1]", s.Score)
			}
			if string(runes[s.Start:s.End]) != s.Answer {
				t.Errorf("offsets [%d,%d) do not match %q", s.Start, s.End, s.Answer)
			}
		})
	}
}

func TestLexicalExtractorNoOverlap(t *testing.T) {
	t.Parallel()

	spans, err := NewLexicalExtractor().Extract(context.Background(), "What colour is the sky?", "Invoices are due monthly.", 3)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(spans) != 0 {
		t.Fatalf("got %v, want no spans", spans)
	}
}

func TestLexicalExtractorHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLexicalExtractor().Extract(ctx, "q", "text", 1); err == nil {
		t.Fatal("expected context error")
	}
}
