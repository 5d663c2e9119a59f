package queue

import (
	"context"

	"automation-hub/backend/internal/logging"
	"automation-hub/backend/pkg/models"
)

// LocalQueue is an in-process queue used when Redis is not configured.
type LocalQueue struct {
	ch     chan models.QueueMessage
	logger *logging.Logger
}

func NewLocalQueue(bufferSize int, logger *logging.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	return &LocalQueue{
		ch:     make(chan models.QueueMessage, bufferSize),
		logger: logger,
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message models.QueueMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- message:
		return nil
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, models.QueueMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			if err := handler(ctx, message); err != nil && q.logger != nil {
				q.logger.Error("job handler failed job_id=%s: %v", message.JobID, err)
			}
		}
	}
}
