package model

const (
	// SourceRAG marks an answer extracted from retrieved chunks rather than
	// from one document.
	SourceRAG = "RAG-retrieved-chunks"

	NoAnswerText  = "No answer found"
	NoContextText = "No context provided"
)

type Answer struct {
	Text       string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Source     string   `json:"source,omitempty"`
	Entities   []Entity `json:"entities,omitempty"`
}

func NoAnswer() Answer {
	return Answer{Text: NoAnswerText}
}

// RetrievalResult is one ranked hit from a corpus index.
type RetrievalResult struct {
	Rank       int     `json:"rank"`
	Chunk      string  `json:"chunk"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
	DocID      string  `json:"doc_id"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

type ChunkMetadata struct {
	DocID string `json:"doc_id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// IndexSnapshot is the cached form of a corpus index. Chunks, Metadata and
// Embeddings are aligned row by row.
type IndexSnapshot struct {
	Model      string          `json:"model,omitempty"`
	Chunks     []string        `json:"chunks"`
	Metadata   []ChunkMetadata `json:"metadata"`
	Embeddings [][]float32     `json:"embeddings"`
}
