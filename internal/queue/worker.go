package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Options tune a Worker. Zero values pick the defaults.
type Options struct {
	// Concurrency is the number of goroutines per queue.
	Concurrency int
	// PollTimeout bounds a single blocking dequeue.
	PollTimeout time.Duration
	// PromoteInterval is how often due retries move back to pending.
	PromoteInterval time.Duration
	// RetryInitial and RetryMax shape the exponential retry delay.
	RetryInitial time.Duration
	RetryMax     time.Duration
	// LeaseTTL is how long a worker's in-flight jobs stay claimed without a
	// heartbeat. It is refreshed every PromoteInterval.
	LeaseTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	if o.PromoteInterval <= 0 {
		o.PromoteInterval = time.Second
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = 5 * time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 5 * time.Minute
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 30 * time.Second
	}
	if o.LeaseTTL < 3*o.PromoteInterval {
		o.LeaseTTL = 3 * o.PromoteInterval
	}
	return o
}

// Worker consumes queues and dispatches jobs to registered tasks.
type Worker struct {
	id       string
	client   *Client
	registry *Registry
	log      logrus.FieldLogger
	opts     Options
	now      func() time.Time
}

// NewWorker builds a worker over client's Redis connection.
func NewWorker(client *Client, registry *Registry, log logrus.FieldLogger, opts Options) *Worker {
	return &Worker{
		id:       uuid.New().String(),
		client:   client,
		registry: registry,
		log:      log,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// ID identifies the worker's processing list and lease.
func (w *Worker) ID() string {
	return w.id
}

// Run requeues jobs abandoned by dead workers, then consumes queues until
// ctx is cancelled. On return the leases are released, so jobs interrupted
// by the shutdown go back to pending at the next worker's recovery pass.
func (w *Worker) Run(ctx context.Context, queues ...string) error {
	for _, queue := range queues {
		if err := w.register(ctx, queue); err != nil {
			return err
		}
		w.recover(ctx, queue)
	}

	var wg sync.WaitGroup
	for _, queue := range queues {
		for i := 0; i < w.opts.Concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.consume(ctx, queue)
			}()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			w.maintain(ctx, queue)
		}()
	}

	w.log.WithFields(logrus.Fields{
		"worker_id":   w.id,
		"queues":      queues,
		"concurrency": w.opts.Concurrency,
		"tasks":       w.registry.Names(),
	}).Info("worker started")

	wg.Wait()
	for _, queue := range queues {
		w.release(queue)
	}
	return nil
}

func (w *Worker) consume(ctx context.Context, queue string) {
	rdb := w.client.rdb
	for ctx.Err() == nil {
		raw, err := rdb.BLMove(ctx, pendingKey(queue), processingKey(queue, w.id), "RIGHT", "LEFT", w.opts.PollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		} else if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).WithField("queue", queue).Error("dequeue failed")
			sleep(ctx, w.opts.PollTimeout)
			continue
		}

		w.process(ctx, queue, raw)
	}
}

// maintain keeps the lease alive, promotes due retries and requeues the
// jobs of dead workers.
func (w *Worker) maintain(ctx context.Context, queue string) {
	ticker := time.NewTicker(w.opts.PromoteInterval)
	defer ticker.Stop()

	log := w.log.WithField("queue", queue)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.heartbeat(ctx, queue); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("lease refresh failed")
			}
			if _, err := w.PromoteDue(ctx, queue); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("promote failed")
			}
			w.recover(ctx, queue)
		}
	}
}

// Drain processes queue until its pending list is empty and returns the
// number of jobs handled. Jobs scheduled for retry are not waited for.
func (w *Worker) Drain(ctx context.Context, queue string) (int, error) {
	if err := w.register(ctx, queue); err != nil {
		return 0, err
	}
	defer w.release(queue)

	rdb := w.client.rdb
	handled := 0
	for {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		if err := w.heartbeat(ctx, queue); err != nil {
			return handled, err
		}

		raw, err := rdb.LMove(ctx, pendingKey(queue), processingKey(queue, w.id), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return handled, nil
		} else if err != nil {
			return handled, fmt.Errorf("failed to dequeue job: %w", err)
		}

		w.process(ctx, queue, raw)
		handled++
	}
}

// Recover moves the jobs of every worker of queue whose lease has expired
// back to pending and returns how many were moved. Live workers, this one
// included, keep their jobs.
func (w *Worker) Recover(ctx context.Context, queue string) (int, error) {
	rdb := w.client.rdb
	workers, err := rdb.SMembers(ctx, workersKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue workers: %w", err)
	}

	moved := 0
	for _, id := range workers {
		if id == w.id {
			continue
		}
		alive, err := rdb.Exists(ctx, leaseKey(queue, id)).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to check worker lease: %w", err)
		}
		if alive > 0 {
			continue
		}

		for {
			_, err := rdb.LMove(ctx, processingKey(queue, id), pendingKey(queue), "RIGHT", "RIGHT").Result()
			if errors.Is(err, redis.Nil) {
				break
			} else if err != nil {
				return moved, fmt.Errorf("failed to recover jobs: %w", err)
			}
			moved++
		}
		if err := rdb.SRem(ctx, workersKey(queue), id).Err(); err != nil {
			return moved, fmt.Errorf("failed to forget worker: %w", err)
		}
	}
	return moved, nil
}

func (w *Worker) recover(ctx context.Context, queue string) {
	n, err := w.Recover(ctx, queue)
	if err != nil && ctx.Err() == nil {
		w.log.WithError(err).WithField("queue", queue).Error("recover failed")
	}
	if n > 0 {
		w.log.WithFields(logrus.Fields{"queue": queue, "count": n}).Warn("requeued abandoned jobs")
	}
}

// register takes the lease and adds the worker to queue's workers set.
func (w *Worker) register(ctx context.Context, queue string) error {
	if err := w.heartbeat(ctx, queue); err != nil {
		return err
	}
	if err := w.client.rdb.SAdd(ctx, workersKey(queue), w.id).Err(); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	return nil
}

func (w *Worker) heartbeat(ctx context.Context, queue string) error {
	if err := w.client.rdb.Set(ctx, leaseKey(queue, w.id), w.now().UTC().Format(time.RFC3339), w.opts.LeaseTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh lease: %w", err)
	}
	return nil
}

// release drops the lease so that anything left in the processing list is
// recovered by the next live worker.
func (w *Worker) release(queue string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.PollTimeout)
	defer cancel()
	if err := w.client.rdb.Del(ctx, leaseKey(queue, w.id)).Err(); err != nil {
		w.log.WithError(err).WithField("queue", queue).Warn("failed to release lease")
	}
}

// PromoteDue moves delayed jobs whose retry time has come back to pending.
func (w *Worker) PromoteDue(ctx context.Context, queue string) (int, error) {
	rdb := w.client.rdb
	due, err := rdb.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(w.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	promoted := 0
	for _, raw := range due {
		removed, err := rdb.ZRem(ctx, delayedKey(queue), raw).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to claim delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := rdb.LPush(ctx, pendingKey(queue), raw).Err(); err != nil {
			return promoted, fmt.Errorf("failed to promote job: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

func (w *Worker) process(ctx context.Context, queue, raw string) {
	log := w.log.WithField("queue", queue)

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.WithError(err).Error("dropping malformed job")
		w.finish(ctx, queue, raw, func(pipe redis.Pipeliner) {
			pipe.LPush(ctx, failedKey(queue), raw)
		})
		return
	}

	env.Attempt++
	log = log.WithFields(logrus.Fields{
		"job_id":  env.ID,
		"task":    env.Task,
		"attempt": env.Attempt,
	})

	jobCtx, span := tracer.Start(ctx, "queue.process",
		trace.WithAttributes(
			attribute.String("queue", queue),
			attribute.String("task", env.Task),
			attribute.Int("attempt", env.Attempt),
		),
	)
	start := time.Now()
	err := w.registry.execute(jobCtx, env.Task, env.Payload)
	if err != nil {
		span.RecordError(err)
	}
	span.End()

	if err == nil {
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("job completed")
		w.finish(ctx, queue, raw, nil)
		return
	}

	env.LastError = err.Error()
	maxAttempts := env.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = w.client.maxAttempts
	}

	if isPermanent(err) || env.Attempt >= maxAttempts {
		log.WithError(err).Error("job failed")
		data, _ := json.Marshal(env)
		w.finish(ctx, queue, raw, func(pipe redis.Pipeliner) {
			pipe.LPush(ctx, failedKey(queue), data)
		})
		return
	}

	delay := w.retryDelay(env.Attempt)
	log.WithError(err).WithField("retry_in", delay.String()).Warn("job failed, will retry")
	data, _ := json.Marshal(env)
	due := float64(w.now().Add(delay).UnixMilli())
	w.finish(ctx, queue, raw, func(pipe redis.Pipeliner) {
		pipe.ZAdd(ctx, delayedKey(queue), redis.Z{Score: due, Member: data})
	})
}

// finish removes raw from the processing list, running then in the same
// transaction.
func (w *Worker) finish(ctx context.Context, queue, raw string, then func(redis.Pipeliner)) {
	_, err := w.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey(queue, w.id), 1, raw)
		if then != nil {
			then(pipe)
		}
		return nil
	})
	if err != nil {
		w.log.WithError(err).WithField("queue", queue).Error("failed to settle job")
	}
}

// retryDelay returns the backoff before attempt+1.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.RetryInitial
	b.MaxInterval = w.opts.RetryMax
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
