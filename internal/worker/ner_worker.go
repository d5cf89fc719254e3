package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docqa/internal/platform/rabbitmq"
)

// NERWorker consumes jobs published by QueueDispatcher.
type NERWorker struct {
	conn      *amqp.Connection
	processor *Processor
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNERWorker(conn *amqp.Connection, processor *Processor, queueName string, logger *slog.Logger) *NERWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NERWorker{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		logger:    logger,
	}
}

func (w *NERWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.logger.Info("ner worker started", "queue", w.queueName)
	return nil
}

// Acknowledger is the subset of amqp.Delivery the worker needs.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (w *NERWorker) handle(ctx context.Context, d amqp.Delivery) {
	w.handleBody(ctx, d.Body, &d)
}

func (w *NERWorker) handleBody(ctx context.Context, body []byte, ack Acknowledger) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		w.logger.Error("worker decode ner job failed", "error", err)
		_ = ack.Nack(false, false)
		return
	}

	if err := w.processor.Process(ctx, job); err != nil {
		w.logger.Error("worker process ner job failed", "session_id", job.SessionID, "doc_id", job.DocumentID, "error", err)
		_ = ack.Nack(false, false)
		return
	}

	_ = ack.Ack(false)
}

func (w *NERWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
