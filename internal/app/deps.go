package app

import (
	"context"
	"errors"
	"time"

	"docqa/internal/model"
	"docqa/internal/qa"
	"docqa/internal/rag"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionTooLong  = errors.New("question too long")
	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrIndexNotFound    = errors.New("index not found")
)

// SessionStore is satisfied by repository.GormStore and
// repository.MemoryStore.
type SessionStore interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessionIDs(ctx context.Context) ([]string, error)
	ListSessionsCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Session, error)
	CountSessions(ctx context.Context) (int64, error)
	DeleteSession(ctx context.Context, id string) error

	AddDocument(ctx context.Context, doc *model.Document) error
	ListDocuments(ctx context.Context, sessionID string) ([]model.Document, error)
	GetDocument(ctx context.Context, sessionID, docID string) (*model.Document, error)
	UpdateNERStatus(ctx context.Context, docID string, status model.NERStatus) error
}

// Index is satisfied by rag.Engine.
type Index interface {
	Build(ctx context.Context, corpusID string, docs []model.DocumentText) bool
	Restore(ctx context.Context, corpusID string, docs []model.DocumentText) bool
	Has(corpusID string) bool
	Stats(corpusID string) (rag.Stats, bool)
	Delete(corpusID string) bool
	Retrieve(ctx context.Context, corpusID, query string, topK int) []model.RetrievalResult
}

// AnswerCache is satisfied by cache.Manager.
type AnswerCache interface {
	GetQAResult(ctx context.Context, sessionID, question string, v any) bool
	CacheQAResult(ctx context.Context, sessionID, question string, v any)
	GetDetailed(ctx context.Context, sessionID, question string, v any) bool
	CacheDetailed(ctx context.Context, sessionID, question string, v any)
	InvalidateAnswers(ctx context.Context, sessionID string) int
	ClearSession(ctx context.Context, sessionID string) int
}

// Answerer is satisfied by qa.Answerer.
type Answerer interface {
	Answer(ctx context.Context, question, text string) model.Answer
	AnswerFromDocuments(ctx context.Context, question string, docs []model.DocumentText, corpusID string, maxContextLen int) (model.Answer, qa.Via)
}

func corpusOf(docs []model.Document) []model.DocumentText {
	out := make([]model.DocumentText, len(docs))
	for i, d := range docs {
		out[i] = model.DocumentText{ID: d.ID, Text: d.Text}
	}
	return out
}
