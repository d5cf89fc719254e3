package rag

import (
	"errors"
	"fmt"
	"sort"

	"docqa/internal/model"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is an indexed span tagged with its owning document.
type Chunk struct {
	DocID string
	Start int
	End   int
	Text  string
}

// Index is an immutable exact L2 index over the chunks of one corpus. It is
// never mutated after construction; rebuilding a corpus produces a new Index.
type Index struct {
	model     string
	dim       int
	chunks    []Chunk
	matrix    []float32
	documents []model.DocumentText
}

// Hit is a search result: the chunk position inside the index and its
// squared L2 distance to the query.
type Hit struct {
	Pos      int
	Distance float64
}

func newIndex(embeddingModel string, chunks []Chunk, vectors [][]float32, docs []model.DocumentText) (*Index, error) {
	if len(chunks) == 0 {
		return nil, errors.New("index needs at least one chunk")
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}

	matrix := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		matrix = append(matrix, v...)
	}

	ownChunks := make([]Chunk, len(chunks))
	copy(ownChunks, chunks)
	ownDocs := make([]model.DocumentText, len(docs))
	copy(ownDocs, docs)

	return &Index{
		model:     embeddingModel,
		dim:       dim,
		chunks:    ownChunks,
		matrix:    matrix,
		documents: ownDocs,
	}, nil
}

func (x *Index) Len() int       { return len(x.chunks) }
func (x *Index) Dimension() int { return x.dim }
func (x *Index) Model() string  { return x.model }

func (x *Index) Documents() []model.DocumentText {
	return x.documents
}

// Search returns the k nearest chunks by squared L2 distance, closest
// first. Equal distances keep index order. k is clamped to Len.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	k = min(k, len(x.chunks))

	hits := make([]Hit, len(x.chunks))
	for i := range x.chunks {
		row := x.matrix[i*x.dim : (i+1)*x.dim]
		var d float64
		for j, v := range row {
			diff := float64(v) - float64(query[j])
			d += diff * diff
		}
		hits[i] = Hit{Pos: i, Distance: d}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Distance < hits[b].Distance
	})
	return hits[:k], nil
}

func (x *Index) snapshot() model.IndexSnapshot {
	snap := model.IndexSnapshot{
		Model:      x.model,
		Chunks:     make([]string, len(x.chunks)),
		Metadata:   make([]model.ChunkMetadata, len(x.chunks)),
		Embeddings: make([][]float32, len(x.chunks)),
	}
	for i, c := range x.chunks {
		snap.Chunks[i] = c.Text
		snap.Metadata[i] = model.ChunkMetadata{DocID: c.DocID, Start: c.Start, End: c.End}
		row := make([]float32, x.dim)
		copy(row, x.matrix[i*x.dim:(i+1)*x.dim])
		snap.Embeddings[i] = row
	}
	return snap
}
