package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// JSONPublisher is satisfied by rabbitmq.Publisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// QueueDispatcher hands jobs to the broker; an NERWorker consumes them.
type QueueDispatcher struct {
	publisher JSONPublisher
}

func NewQueueDispatcher(publisher JSONPublisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job Job) error {
	if err := d.publisher.PublishJSON(ctx, job); err != nil {
		return fmt.Errorf("publish ner job failed: %w", err)
	}
	return nil
}

// InProcessDispatcher runs jobs on goroutines owned by the dispatcher, at
// most limit at a time. Jobs outlive the request that dispatched them and
// are cancelled by Close.
type InProcessDispatcher struct {
	processor *Processor
	logger    *slog.Logger
	sem       chan struct{}

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewInProcessDispatcher(processor *Processor, limit int, logger *slog.Logger) *InProcessDispatcher {
	if limit <= 0 {
		limit = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InProcessDispatcher{
		processor: processor,
		logger:    logger,
		sem:       make(chan struct{}, limit),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (d *InProcessDispatcher) Dispatch(_ context.Context, job Job) error {
	d.mu.Lock()
	if err := d.ctx.Err(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher closed: %w", err)
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
		case <-d.ctx.Done():
			return
		}
		defer func() { <-d.sem }()

		if err := d.processor.Process(d.ctx, job); err != nil {
			d.logger.Error("ner job failed", "session_id", job.SessionID, "doc_id", job.DocumentID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has finished.
func (d *InProcessDispatcher) Wait() {
	d.wg.Wait()
}

func (d *InProcessDispatcher) Close() {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}
