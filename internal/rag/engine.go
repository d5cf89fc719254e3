package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"docqa/internal/metrics"
	"docqa/internal/model"
)

const (
	DefaultCandidatePool    = 10
	DefaultTopK             = 3
	DefaultMaxContextLength = 4000

	contextSeparator = "\n\n"
)

// SnapshotStore persists built indexes for rehydration. Implementations are
// best effort: Save never fails the caller and Load reports a miss on any
// problem.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, corpusID string, snap model.IndexSnapshot)
	LoadSnapshot(ctx context.Context, corpusID string) (model.IndexSnapshot, bool)
}

type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
	// CandidatePool is how many chunks AugmentContext retrieves before the
	// position sort.
	CandidatePool int
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:      DefaultChunkSize,
		ChunkOverlap:   DefaultChunkOverlap,
		MinChunkLength: DefaultMinChunkLength,
		CandidatePool:  DefaultCandidatePool,
	}
}

type Stats struct {
	CorpusID  string `json:"session_id"`
	Chunks    int    `json:"chunks"`
	Documents int    `json:"documents"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

// Engine owns the per-corpus indexes and answers retrieval queries against
// them. A missing index is a normal state: Retrieve returns nothing and
// AugmentContext returns an empty context.
type Engine struct {
	embedder  Embedder
	snapshots SnapshotStore
	registry  *Registry
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewEngine(embedder Embedder, snapshots SnapshotStore, opts Options, m *metrics.Metrics, logger *slog.Logger) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidChunkConfig)
	}
	if err := ValidateChunking(opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return nil, err
	}
	if opts.MinChunkLength < 0 {
		return nil, fmt.Errorf("%w: min chunk length %d is negative", ErrInvalidChunkConfig, opts.MinChunkLength)
	}
	if opts.CandidatePool <= 0 {
		opts.CandidatePool = DefaultCandidatePool
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:  embedder,
		snapshots: snapshots,
		registry:  NewRegistry(),
		opts:      opts,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Build chunks every document, embeds all chunks in one call and publishes
// a fresh index for corpusID. It returns false when nothing survives
// chunking or embedding fails; the previous index, if any, stays in place.
func (e *Engine) Build(ctx context.Context, corpusID string, docs []model.DocumentText) bool {
	chunks, err := e.chunk(docs)
	if err != nil {
		e.logger.Error("chunk corpus failed", slog.String("session_id", corpusID), slog.Any("error", err))
		e.metrics.IncIndexBuild(metrics.OutcomeError, 0)
		return false
	}
	if len(chunks) == 0 {
		e.logger.Warn("no chunks survived filtering, index not built",
			slog.String("session_id", corpusID),
			slog.Int("documents", len(docs)),
		)
		e.metrics.IncIndexBuild(metrics.OutcomeEmpty, 0)
		return false
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		e.logger.Error("embed chunks failed", slog.String("session_id", corpusID), slog.Any("error", err))
		e.metrics.IncIndexBuild(metrics.OutcomeError, 0)
		return false
	}

	idx, err := newIndex(e.embedder.Model(), chunks, vectors, docs)
	if err != nil {
		e.logger.Error("assemble index failed", slog.String("session_id", corpusID), slog.Any("error", err))
		e.metrics.IncIndexBuild(metrics.OutcomeError, 0)
		return false
	}

	e.registry.Swap(corpusID, idx)
	e.metrics.IncIndexBuild(metrics.OutcomeOK, idx.Len())
	e.logger.Info("index built",
		slog.String("session_id", corpusID),
		slog.Int("chunks", idx.Len()),
		slog.Int("dimension", idx.Dimension()),
	)

	if e.snapshots != nil {
		e.snapshots.SaveSnapshot(ctx, corpusID, idx.snapshot())
	}
	return true
}

// Restore rebuilds the index for corpusID from a cached snapshot without
// calling the embedder. The snapshot is accepted only when it was produced
// by the same embedding model and its chunks match what chunking docs would
// produce now, row for row.
func (e *Engine) Restore(ctx context.Context, corpusID string, docs []model.DocumentText) bool {
	if e.snapshots == nil {
		return false
	}
	snap, ok := e.snapshots.LoadSnapshot(ctx, corpusID)
	if !ok {
		return false
	}
	if err := e.checkSnapshot(snap, docs); err != nil {
		e.logger.Warn("discarding cached index", slog.String("session_id", corpusID), slog.Any("error", err))
		return false
	}

	chunks := make([]Chunk, len(snap.Chunks))
	for i, meta := range snap.Metadata {
		chunks[i] = Chunk{DocID: meta.DocID, Start: meta.Start, End: meta.End, Text: snap.Chunks[i]}
	}
	idx, err := newIndex(snap.Model, chunks, snap.Embeddings, docs)
	if err != nil {
		e.logger.Warn("discarding cached index", slog.String("session_id", corpusID), slog.Any("error", err))
		return false
	}
	e.registry.Swap(corpusID, idx)
	e.logger.Info("index restored from cache", slog.String("session_id", corpusID), slog.Int("chunks", idx.Len()))
	return true
}

func (e *Engine) checkSnapshot(snap model.IndexSnapshot, docs []model.DocumentText) error {
	if snap.Model != e.embedder.Model() {
		return fmt.Errorf("snapshot model %q differs from %q", snap.Model, e.embedder.Model())
	}
	n := len(snap.Chunks)
	if n == 0 || len(snap.Metadata) != n || len(snap.Embeddings) != n {
		return fmt.Errorf("snapshot rows misaligned: %d chunks, %d metadata, %d embeddings",
			n, len(snap.Metadata), len(snap.Embeddings))
	}
	want, err := e.chunk(docs)
	if err != nil {
		return err
	}
	if len(want) != n {
		return fmt.Errorf("snapshot has %d chunks, documents produce %d", n, len(want))
	}
	for i, c := range want {
		meta := snap.Metadata[i]
		if meta.DocID != c.DocID || meta.Start != c.Start || meta.End != c.End || snap.Chunks[i] != c.Text {
			return fmt.Errorf("snapshot row %d does not match document %s [%d,%d)", i, c.DocID, c.Start, c.End)
		}
	}
	return nil
}

// Retrieve returns up to topK chunks closest to query, best first. It
// returns an empty slice when corpusID has no index or the query cannot be
// embedded.
func (e *Engine) Retrieve(ctx context.Context, corpusID, query string, topK int) []model.RetrievalResult {
	idx, ok := e.registry.Get(corpusID)
	if !ok {
		return []model.RetrievalResult{}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		e.logger.Warn("embed query failed", slog.String("session_id", corpusID), slog.Any("error", err))
		return []model.RetrievalResult{}
	}
	if idx.Model() != e.embedder.Model() {
		e.logger.Warn("index model differs from query model",
			slog.String("session_id", corpusID),
			slog.String("index_model", idx.Model()),
			slog.String("query_model", e.embedder.Model()),
		)
		return []model.RetrievalResult{}
	}

	hits, err := idx.Search(vectors[0], topK)
	if err != nil {
		e.logger.Warn("search index failed", slog.String("session_id", corpusID), slog.Any("error", err))
		return []model.RetrievalResult{}
	}

	results := make([]model.RetrievalResult, len(hits))
	for rank, h := range hits {
		c := idx.chunks[h.Pos]
		results[rank] = model.RetrievalResult{
			Rank:       rank + 1,
			Chunk:      c.Text,
			Distance:   h.Distance,
			Similarity: 1 / (1 + h.Distance),
			DocID:      c.DocID,
			Start:      c.Start,
			End:        c.End,
		}
	}
	return results
}

// AugmentContext builds the context shown to the answer extractor. It takes
// the CandidatePool nearest chunks, puts them back in document position
// order, joins them with a blank line and cuts the result to maxLen runes.
// If the index exists but retrieval finds nothing, the indexed documents
// are concatenated instead. Without an index it returns "".
func (e *Engine) AugmentContext(ctx context.Context, corpusID, question string, maxLen int) string {
	idx, ok := e.registry.Get(corpusID)
	if !ok {
		return ""
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxContextLength
	}

	results := e.Retrieve(ctx, corpusID, question, e.opts.CandidatePool)
	parts := make([]string, 0, len(results))
	if len(results) == 0 {
		for _, d := range idx.Documents() {
			parts = append(parts, d.Text)
		}
	} else {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Start < results[j].Start
		})
		for _, r := range results {
			parts = append(parts, r.Chunk)
		}
	}
	return truncateRunes(strings.Join(parts, contextSeparator), maxLen)
}

func (e *Engine) Has(corpusID string) bool {
	_, ok := e.registry.Get(corpusID)
	return ok
}

func (e *Engine) Stats(corpusID string) (Stats, bool) {
	idx, ok := e.registry.Get(corpusID)
	if !ok {
		return Stats{}, false
	}
	return Stats{
		CorpusID:  corpusID,
		Chunks:    idx.Len(),
		Documents: len(idx.Documents()),
		Dimension: idx.Dimension(),
		Model:     idx.Model(),
	}, true
}

func (e *Engine) Delete(corpusID string) bool {
	return e.registry.Delete(corpusID)
}

func (e *Engine) Corpora() []string {
	return e.registry.IDs()
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) chunk(docs []model.DocumentText) ([]Chunk, error) {
	var chunks []Chunk
	for _, d := range docs {
		spans, err := Split(d.Text, e.opts.ChunkSize, e.opts.ChunkOverlap, e.opts.MinChunkLength)
		if err != nil {
			return nil, err
		}
		for _, s := range spans {
			chunks = append(chunks, Chunk{DocID: d.ID, Start: s.Start, End: s.End, Text: s.Text})
		}
	}
	return chunks, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
