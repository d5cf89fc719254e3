// Package worker runs entity extraction for uploaded documents off the
// request path, either through a RabbitMQ queue or in process.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/ner"
)

// Job asks for entity extraction over one stored document.
type Job struct {
	SessionID  string `json:"session_id"`
	DocumentID string `json:"doc_id"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

type DocumentStore interface {
	GetDocument(ctx context.Context, sessionID, docID string) (*model.Document, error)
	UpdateNERStatus(ctx context.Context, docID string, status model.NERStatus) error
	SaveEntities(ctx context.Context, docID string, entities []model.Entity) error
}

// Processor moves a document through processing to completed or failed.
type Processor struct {
	store      DocumentStore
	recognizer ner.Recognizer
	window     int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewProcessor(store DocumentStore, recognizer ner.Recognizer, window int, m *metrics.Metrics, logger *slog.Logger) *Processor {
	if window <= 0 {
		window = ner.DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:      store,
		recognizer: recognizer,
		window:     window,
		metrics:    m,
		logger:     logger,
	}
}

// Process returns an error only when the document could not be loaded or
// its state could not be written. Recognizer failures are recorded on the
// document as NERFailed.
func (p *Processor) Process(ctx context.Context, job Job) error {
	log := p.logger.With("session_id", job.SessionID, "doc_id", job.DocumentID)

	doc, err := p.store.GetDocument(ctx, job.SessionID, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document for ner failed: %w", err)
	}
	if doc == nil {
		// Session deleted before the job ran.
		log.Info("ner job skipped, document gone")
		return nil
	}

	if err := p.store.UpdateNERStatus(ctx, doc.ID, model.NERProcessing); err != nil {
		return fmt.Errorf("mark ner processing failed: %w", err)
	}

	entities, err := ner.ExtractChunked(ctx, p.recognizer, doc.Text, p.window)
	if err != nil {
		log.Warn("ner extraction failed", "error", err)
		p.metrics.IncNERJob(metrics.OutcomeFailed)
		if err := p.store.UpdateNERStatus(ctx, doc.ID, model.NERFailed); err != nil {
			return fmt.Errorf("mark ner failed failed: %w", err)
		}
		return nil
	}

	if err := p.store.SaveEntities(ctx, doc.ID, entities); err != nil {
		p.metrics.IncNERJob(metrics.OutcomeError)
		return fmt.Errorf("save entities failed: %w", err)
	}
	p.metrics.IncNERJob(metrics.OutcomeOK)
	log.Info("ner completed", "entities", len(entities))
	return nil
}
