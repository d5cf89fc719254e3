package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"docqa/internal/metrics"
	"docqa/internal/model"
)

type askResult struct {
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	SourceDoc  string         `json:"source_doc"`
	Entities   []model.Entity `json:"entities"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerRoundTripIsIdentical(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := NewManager(NewMemoryBackend(), 0, 0, nil, quietLogger())
	in := askResult{
		Question:   "What is the total?",
		Answer:     "$50,000",
		Confidence: 0.8125,
		SourceDoc:  "RAG-retrieved-chunks",
		Entities:   []model.Entity{{Text: "$50,000", Label: "MONEY", Start: 0, End: 7}},
	}
	mgr.CacheQAResult(ctx, "s1", in.Question, in)

	var out askResult
	if !mgr.GetQAResult(ctx, "s1", in.Question, &out) {
		t.Fatal("expected cache hit")
	}
	a, _ := json.Marshal(in)
	b, _ := json.Marshal(out)
	if !bytes.Equal(a, b) {
		t.Fatalf("cached value differs:\n%s\n%s", a, b)
	}
	if mgr.GetQAResult(ctx, "s2", in.Question, &out) {
		t.Fatal("cache must be scoped per session")
	}
	if mgr.GetDetailed(ctx, "s1", in.Question, &out) {
		t.Fatal("detailed answers use a separate key space")
	}
}

func TestManagerSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr := NewManager(NewMemoryBackend(), 0, 0, nil, quietLogger())
	snap := model.IndexSnapshot{
		Model:      "hashing-4",
		Chunks:     []string{"alpha", "beta"},
		Metadata:   []model.ChunkMetadata{{DocID: "d1", Start: 0, End: 5}, {DocID: "d1", Start: 5, End: 9}},
		Embeddings: [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
	}
	mgr.SaveSnapshot(ctx, "s1", snap)

	got, ok := mgr.LoadSnapshot(ctx, "s1")
	if !ok {
		t.Fatal("expected snapshot hit")
	}
	if got.Model != snap.Model || len(got.Chunks) != 2 || got.Metadata[1].Start != 5 || got.Embeddings[1][1] != 1 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestManagerInvalidateAndClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := NewMemoryBackend()
	mgr := NewManager(backend, 0, 0, nil, quietLogger())
	mgr.CacheQAResult(ctx, "s1", "q1", askResult{Answer: "a"})
	mgr.CacheDetailed(ctx, "s1", "q1", askResult{Answer: "a"})
	mgr.SaveSnapshot(ctx, "s1", model.IndexSnapshot{Model: "m"})
	mgr.CacheQAResult(ctx, "s2", "q1", askResult{Answer: "b"})

	if n := mgr.InvalidateAnswers(ctx, "s1"); n != 2 {
		t.Fatalf("InvalidateAnswers() = %d, want 2", n)
	}
	if _, ok := mgr.LoadSnapshot(ctx, "s1"); !ok {
		t.Fatal("snapshot should survive answer invalidation")
	}
	if n := mgr.ClearSession(ctx, "s1"); n != 1 {
		t.Fatalf("ClearSession() = %d, want 1", n)
	}
	var out askResult
	if !mgr.GetQAResult(ctx, "s2", "q1", &out) || out.Answer != "b" {
		t.Fatal("other sessions must be untouched")
	}
	if n := mgr.ClearSession(ctx, ""); n != 0 {
		t.Fatalf("ClearSession(\"\") = %d, want 0", n)
	}
}

func TestMemoryBackendExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewMemoryBackend()
	b.now = func() time.Time { return now }

	_ = b.Set(ctx, "short", []byte("1"), time.Minute)
	_ = b.Set(ctx, "forever", []byte("2"), 0)

	now = now.Add(2 * time.Minute)
	if _, ok, _ := b.Get(ctx, "short"); ok {
		t.Fatal("expired entry returned")
	}
	if v, ok, _ := b.Get(ctx, "forever"); !ok || string(v) != "2" {
		t.Fatal("entry without TTL must not expire")
	}

	_ = b.Set(ctx, "again", []byte("3"), time.Second)
	now = now.Add(time.Hour)
	if n := b.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	stats, _ := b.Stats(ctx)
	if stats.Type != "in-memory" || stats.Entries != 1 || !stats.Connected {
		t.Fatalf("stats = %+v", stats)
	}
}

type brokenBackend struct{}

var errBackendDown = errors.New("backend down")

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errBackendDown
}

func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errBackendDown
}

func (brokenBackend) Delete(context.Context, string) error {
	return errBackendDown
}

func (brokenBackend) DeleteMatching(context.Context, string) (int, error) {
	return 0, errBackendDown
}

func (brokenBackend) Stats(context.Context) (Stats, error) {
	return Stats{}, errBackendDown
}

func (brokenBackend) Name() string { return "broken" }

func TestManagerSwallowsBackendFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	mgr := NewManager(brokenBackend{}, 0, 0, m, quietLogger())

	mgr.CacheQAResult(ctx, "s1", "q", askResult{Answer: "x"})
	var out askResult
	if mgr.GetQAResult(ctx, "s1", "q", &out) {
		t.Fatal("failing backend must report a miss")
	}
	if _, ok := mgr.LoadSnapshot(ctx, "s1"); ok {
		t.Fatal("failing backend must report a snapshot miss")
	}
	if n := mgr.ClearSession(ctx, "s1"); n != 0 {
		t.Fatalf("ClearSession() = %d", n)
	}
	stats := mgr.Stats(ctx)
	if stats.Connected || stats.Type != "broken" || stats.Error == "" {
		t.Fatalf("stats = %+v", stats)
	}
	expected := `
# HELP docqa_cache_lookups_total Cache lookups, partitioned by entry kind and result.
# TYPE docqa_cache_lookups_total counter
docqa_cache_lookups_total{kind="embeddings",result="miss"} 1
docqa_cache_lookups_total{kind="qa_result",result="miss"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "docqa_cache_lookups_total"); err != nil {
		t.Fatal(err)
	}
}

func TestNilManagerIsDisabled(t *testing.T) {
	t.Parallel()

	var mgr *Manager
	ctx := context.Background()
	mgr.CacheQAResult(ctx, "s", "q", askResult{})
	mgr.SaveSnapshot(ctx, "s", model.IndexSnapshot{})
	if mgr.GetQAResult(ctx, "s", "q", &askResult{}) {
		t.Fatal("nil manager must miss")
	}
	if mgr.Name() != "disabled" || mgr.Stats(ctx).Type != "disabled" {
		t.Fatal("nil manager should report disabled")
	}
}

func TestEscapeGlob(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"abc-123": "abc-123",
		"a*b":     `a\*b`,
		"q?[x]":   `q\?\[x\]`,
		`back\sl`: `back\\sl`,
	}
	for in, want := range tests {
		if got := escapeGlob(in); got != want {
			t.Errorf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}
