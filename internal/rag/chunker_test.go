package rag

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSplitRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 10, 10},
		{"overlap above size", 10, 11},
		{"negative overlap", 10, -1},
		{"zero size", 0, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Split("some text", tt.size, tt.overlap, 0)
			if !errors.Is(err, ErrInvalidChunkConfig) {
				t.Fatalf("Split() error = %v, want ErrInvalidChunkConfig", err)
			}
		})
	}
}

func TestSplitEmptyText(t *testing.T) {
	t.Parallel()

	spans, err := Split("", 500, 50, 50)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(spans) != 0 {
		t.Fatalf("Split(\"\") = %d spans, want 0", len(spans))
	}
}

func TestSplitWindowsAdvanceByStep(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("abcdefghij", 6) // 60 runes
	spans, err := Split(text, 20, 5, 0)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	want := [][2]int{{0, 20}, {15, 35}, {30, 50}, {45, 60}}
	if len(spans) != len(want) {
		t.Fatalf("got %d spans, want %d", len(spans), len(want))
	}
	for i, s := range spans {
		if s.Start != want[i][0] || s.End != want[i][1] {
			t.Errorf("span %d = [%d,%d), want [%d,%d)", i, s.Start, s.End, want[i][0], want[i][1])
		}
		if s.End-s.Start > 20 {
			t.Errorf("span %d longer than chunk size", i)
		}
		if s.Text != text[s.Start:s.End] {
			t.Errorf("span %d text does not match offsets", i)
		}
	}
	for i := 1; i < len(spans)-1; i++ {
		if overlap := spans[i-1].End - spans[i].Start; overlap != 5 {
			t.Errorf("overlap between %d and %d = %d, want 5", i-1, i, overlap)
		}
	}
}

func TestSplitCoversEveryCharacter(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	for _, cfg := range [][2]int{{500, 50}, {100, 0}, {64, 63}, {7, 3}} {
		spans, err := Split(text, cfg[0], cfg[1], 0)
		if err != nil {
			t.Fatalf("Split(%v) error = %v", cfg, err)
		}
		covered := make([]bool, len([]rune(text)))
		for _, s := range spans {
			for i := s.Start; i < s.End; i++ {
				covered[i] = true
			}
		}
		for i, ok := range covered {
			if !ok {
				t.Fatalf("config %v: character %d not covered", cfg, i)
			}
		}
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("Payment terms are net thirty days from invoice. ", 30)
	a, err := Split(text, 500, 50, 50)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	b, err := Split(text, 500, 50, 50)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("Split() is not deterministic")
	}
}

func TestSplitDropsShortWindows(t *testing.T) {
	t.Parallel()

	// Second window is only whitespace padding plus a short tail.
	text := strings.Repeat("x", 60) + strings.Repeat(" ", 40) + "tail"
	spans, err := Split(text, 60, 0, 50)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Start != 0 || spans[0].End != 60 {
		t.Errorf("kept span = [%d,%d), want [0,60)", spans[0].Start, spans[0].End)
	}

	// Exactly minLen after trimming is dropped; one more rune is kept.
	exact, _ := Split("  "+strings.Repeat("y", 50)+"  ", 500, 50, 50)
	if len(exact) != 0 {
		t.Errorf("window with trimmed length == min was kept")
	}
	above, _ := Split(strings.Repeat("y", 51), 500, 50, 50)
	if len(above) != 1 {
		t.Errorf("window with trimmed length > min was dropped")
	}
}

func TestSplitUsesRuneOffsets(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 30) + strings.Repeat("ü", 30)
	spans, err := Split(text, 40, 10, 0)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	runes := []rune(text)
	for _, s := range spans {
		if s.Text != string(runes[s.Start:s.End]) {
			t.Fatalf("span [%d,%d) text mismatch", s.Start, s.End)
		}
	}
	if last := spans[len(spans)-1]; last.End != 60 {
		t.Errorf("last span ends at %d, want 60", last.End)
	}
}

func TestWindowsStopAtEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want [][2]int
	}{
		{0, nil},
		{100, [][2]int{{0, 100}}},
		{4000, [][2]int{{0, 4000}}},
		{4001, [][2]int{{0, 4000}, {3800, 4001}}},
		{9000, [][2]int{{0, 4000}, {3800, 7800}, {7600, 9000}}},
	}
	for _, tt := range tests {
		got, err := Windows(tt.n, 4000, 200)
		if err != nil {
			t.Fatalf("Windows(%d) error = %v", tt.n, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Windows(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}

	if _, err := Windows(10, 200, 200); !errors.Is(err, ErrInvalidChunkConfig) {
		t.Errorf("Windows() with overlap == size error = %v", err)
	}
}
