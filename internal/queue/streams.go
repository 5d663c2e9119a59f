package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"automation-hub/backend/pkg/models"
)

type StreamsConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

// StreamsQueue implements Producer+Consumer backed by Redis Streams, for
// running the worker pool in a process separate from the API.
type StreamsQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "hub_jobs"
	}
	if cfg.Group == "" {
		cfg.Group = "hub_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue := &StreamsQueue{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.Consumer,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return queue, nil
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, message models.QueueMessage) error {
	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"job_id":      message.JobID,
			"system_slug": message.SystemSlug,
			"client_id":   message.ClientID,
			"payload":     string(message.Payload),
			"enqueued_at": message.EnqueuedAt.Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}
	return nil
}

func (q *StreamsQueue) Consume(ctx context.Context, handler func(context.Context, models.QueueMessage) error) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read from stream: %w", err)
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				message := decodeMessage(entry)
				// Failures are recorded on the job ledger by the
				// handler; the entry is acknowledged either way so
				// a poisoned job is never redelivered.
				_ = handler(ctx, message)
				if err := q.client.XAck(ctx, q.stream, q.group, entry.ID).Err(); err != nil {
					return fmt.Errorf("ack stream entry: %w", err)
				}
			}
		}
	}
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func decodeMessage(entry redis.XMessage) models.QueueMessage {
	message := models.QueueMessage{}
	if v, ok := entry.Values["job_id"].(string); ok {
		message.JobID = v
	}
	if v, ok := entry.Values["system_slug"].(string); ok {
		message.SystemSlug = v
	}
	if v, ok := entry.Values["client_id"].(string); ok {
		message.ClientID = v
	}
	if v, ok := entry.Values["payload"].(string); ok {
		message.Payload = []byte(v)
	}
	if v, ok := entry.Values["enqueued_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			message.EnqueuedAt = parsed
		}
	}
	return message
}
