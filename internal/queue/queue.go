// Package queue hands submitted jobs from the API to the worker pool.
package queue

import (
	"context"

	"automation-hub/backend/pkg/models"
)

// Producer sends job messages to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message models.QueueMessage) error
}

// Consumer receives job messages and executes the handler for each. A
// handler error marks the message failed; the pipeline layer has already
// recorded the failure on the ledger, so messages are never redelivered.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, models.QueueMessage) error) error
}
