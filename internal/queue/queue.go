// Package queue is an at-least-once job queue on top of Redis lists.
//
// Every queue name owns a pending list that producers LPUSH onto, a delayed
// sorted set of jobs waiting for a retry and a failed list of dead jobs.
// Each worker additionally owns a processing list holding the jobs it is
// running and a lease key it refreshes while alive. The queue's workers set
// names every worker that has consumed from it; a processing list whose
// lease has expired belongs to a dead worker and is moved back to pending.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("files-manager-queue")

// Queue and task names used by the service.
const (
	ThumbnailQueue = "thumbnails"
	ThumbnailTask  = "generate_thumbnails"

	EmailQueue  = "emails"
	WelcomeTask = "send_welcome_email"
)

// DefaultMaxAttempts is used when a client is built with a non-positive limit.
const DefaultMaxAttempts = 3

// Envelope is the stored form of a job.
type Envelope struct {
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	ID          string          `json:"id"`
	Task        string          `json:"task"`
	LastError   string          `json:"lastError,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
}

// Stats are the sizes of a queue's keys.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Failed     int64 `json:"failed"`
}

// Client enqueues jobs and inspects queues.
type Client struct {
	rdb         redis.UniversalClient
	maxAttempts int
}

// NewClient returns a client whose jobs are tried at most maxAttempts times.
func NewClient(rdb redis.UniversalClient, maxAttempts int) *Client {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Client{rdb: rdb, maxAttempts: maxAttempts}
}

// Enqueue pushes a task with payload onto queue and returns the job id.
func (c *Client) Enqueue(ctx context.Context, queue, task string, payload any) (string, error) {
	ctx, span := tracer.Start(ctx, "queue.enqueue",
		trace.WithAttributes(
			attribute.String("queue", queue),
			attribute.String("task", task),
		),
	)
	defer span.End()

	raw, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	env := Envelope{
		ID:          uuid.New().String(),
		Task:        task,
		Payload:     raw,
		MaxAttempts: c.maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := c.rdb.LPush(ctx, pendingKey(queue), data).Err(); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	span.SetAttributes(attribute.String("job_id", env.ID))
	return env.ID, nil
}

// Stats returns the current sizes of queue.
func (c *Client) Stats(ctx context.Context, queue string) (Stats, error) {
	workers, err := c.rdb.SMembers(ctx, workersKey(queue)).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read queue workers: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pending := pipe.LLen(ctx, pendingKey(queue))
	delayed := pipe.ZCard(ctx, delayedKey(queue))
	failed := pipe.LLen(ctx, failedKey(queue))
	processing := make([]*redis.IntCmd, 0, len(workers))
	for _, id := range workers {
		processing = append(processing, pipe.LLen(ctx, processingKey(queue, id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	stats := Stats{
		Pending: pending.Val(),
		Delayed: delayed.Val(),
		Failed:  failed.Val(),
	}
	for _, cmd := range processing {
		stats.Processing += cmd.Val()
	}
	return stats, nil
}

// Failed returns the dead jobs of queue, newest first.
func (c *Client) Failed(ctx context.Context, queue string) ([]Envelope, error) {
	raws, err := c.rdb.LRange(ctx, failedKey(queue), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read failed jobs: %w", err)
	}

	envs := make([]Envelope, 0, len(raws))
	for _, raw := range raws {
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			continue
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func pendingKey(queue string) string { return "queue:" + queue + ":pending" }
func delayedKey(queue string) string { return "queue:" + queue + ":delayed" }
func failedKey(queue string) string  { return "queue:" + queue + ":failed" }
func workersKey(queue string) string { return "queue:" + queue + ":workers" }

func processingKey(queue, workerID string) string {
	return "queue:" + queue + ":processing:" + workerID
}

func leaseKey(queue, workerID string) string {
	return "queue:" + queue + ":lease:" + workerID
}
