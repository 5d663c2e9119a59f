// Package worker drains the job queue and drives pipeline runs.
package worker

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/pipeline"
	"automation-hub/backend/internal/queue"
	"automation-hub/backend/pkg/models"
)

// Processor consumes queue messages and dispatches each to the pipeline
// registered for its system slug. Each pipeline runs under its own
// concurrency cap; a message for an unregistered slug fails the job on the
// ledger.
type Processor struct {
	consumer    queue.Consumer
	ledger      pipeline.Ledger
	pipelines   map[string]registration
	concurrency int
	logger      *logging.Logger

	jobsProcessed metric.Int64Counter
	jobsFailed    metric.Int64Counter
}

// registration pairs a pipeline with its concurrency semaphore. One slug's
// saturation must not delay another slug's jobs.
type registration struct {
	pipeline pipeline.Pipeline
	sem      chan struct{}
}

type Config struct {
	Consumer    queue.Consumer
	Ledger      pipeline.Ledger
	Concurrency int
	Logger      *logging.Logger
}

func NewProcessor(config Config) (*Processor, error) {
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}

	meter := otel.Meter("automation-hub/worker")
	processed, err := meter.Int64Counter("jobs.processed",
		metric.WithDescription("Jobs pulled off the queue, by outcome"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("jobs.failed",
		metric.WithDescription("Jobs that ended in the failed status"))
	if err != nil {
		return nil, err
	}

	return &Processor{
		consumer:      config.Consumer,
		ledger:        config.Ledger,
		pipelines:     make(map[string]registration),
		concurrency:   config.Concurrency,
		logger:        config.Logger,
		jobsProcessed: processed,
		jobsFailed:    failed,
	}, nil
}

// Register wires a pipeline to its system slug under its own concurrency
// cap. A cap of zero or less inherits the processor default. Not safe to
// call after Run.
func (p *Processor) Register(pl pipeline.Pipeline, concurrency int) {
	if concurrency <= 0 {
		concurrency = p.concurrency
	}
	p.pipelines[pl.Slug()] = registration{
		pipeline: pl,
		sem:      make(chan struct{}, concurrency),
	}
}

// Run blocks consuming messages until ctx is canceled, then waits for
// in-flight jobs to finish. The semaphore is acquired inside the spawned
// goroutine so a saturated pipeline never stalls the consume loop.
func (p *Processor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	err := p.consumer.Consume(ctx, func(msgCtx context.Context, msg models.QueueMessage) error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.process(msgCtx, msg)
		}()
		return nil
	})

	wg.Wait()
	return err
}

func (p *Processor) process(ctx context.Context, msg models.QueueMessage) {
	attrs := metric.WithAttributes(attribute.String("system", msg.SystemSlug))

	reg, ok := p.pipelines[msg.SystemSlug]
	if !ok {
		p.logger.Error("job %s: no pipeline registered for system %q", msg.JobID, msg.SystemSlug)
		cause := fmt.Sprintf("no pipeline registered for system %q", msg.SystemSlug)
		if err := p.ledger.Fail(ctx, msg.JobID, cause); err != nil {
			p.logger.Error("job %s: recording failure: %v", msg.JobID, err)
		}
		p.jobsFailed.Add(ctx, 1, attrs)
		p.jobsProcessed.Add(ctx, 1, attrs)
		return
	}

	select {
	case reg.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-reg.sem }()

	job := &pipeline.Job{
		ID:         msg.JobID,
		SystemSlug: msg.SystemSlug,
		ClientID:   msg.ClientID,
		Payload:    msg.Payload,
	}
	if err := pipeline.Run(ctx, p.ledger, reg.pipeline, job, p.logger); err != nil {
		p.jobsFailed.Add(ctx, 1, attrs)
	}
	p.jobsProcessed.Add(ctx, 1, attrs)
}
