package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/campusgig/internal/config"
	"github.com/huangang/campusgig/pkg/logger"
	"github.com/rs/zerolog"
)

const notificationQueue = "notifications"

type attemptKey struct{}

// WithAttempt records which delivery attempt of a reveal task ctx belongs
// to. The first attempt is 0.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// DeliveryAttempt returns the attempt stored by WithAttempt, or 0.
func DeliveryAttempt(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

// Worker consumes reveal tasks from the Redis notifications queue.
type Worker struct {
	server    *asynq.Server
	processor func(context.Context, *RevealTask) error
	log       zerolog.Logger

	mu      sync.Mutex
	started bool
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}
	w := &Worker{log: logger.Component("worker")}
	w.server = asynq.NewServer(redisClientOpt(cfg), asynq.Config{
		Concurrency:  5,
		Queues:       map[string]int{notificationQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(w.reportFailure),
	})
	return w
}

func (w *Worker) SetProcessor(processor func(context.Context, *RevealTask) error) {
	w.processor = processor
}

// Start begins consuming in the background. Calling it twice is a no-op.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	if err := w.server.Start(w.handler()); err != nil {
		return fmt.Errorf("start notification worker: %w", err)
	}
	w.started = true
	w.log.Info().Str("queue", notificationQueue).Msg("[Worker] Consuming reveal tasks")
	return nil
}

// Stop waits for in-flight tasks, then disconnects from Redis.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.server.Shutdown()
	w.started = false
	w.log.Info().Msg("[Worker] Stopped")
}

func (w *Worker) handler() asynq.Handler {
	mux := asynq.NewServeMux()
	mux.Use(withRetryAttempt)
	mux.HandleFunc(TaskTypeReviewRevealed, w.handleRevealTask)
	return mux
}

// withRetryAttempt copies asynq's retry count into the task context so the
// processor can tell a redelivery from the first run.
func withRetryAttempt(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		retried, _ := asynq.GetRetryCount(ctx)
		return next.ProcessTask(WithAttempt(ctx, retried), t)
	})
}

func (w *Worker) handleRevealTask(ctx context.Context, t *asynq.Task) error {
	var task RevealTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.log.Error().Err(err).Msg("[Worker] Dropping malformed reveal task")
		return fmt.Errorf("decode reveal task: %w", asynq.SkipRetry)
	}
	if w.processor == nil {
		w.log.Warn().Uint("review_id", task.ReviewID).Msg("[Worker] No processor set")
		return nil
	}

	w.log.Debug().
		Uint("review_id", task.ReviewID).
		Uint("job_id", task.JobID).
		Int("attempt", DeliveryAttempt(ctx)).
		Msg("[Worker] Processing reveal")
	return w.processor(ctx, &task)
}

func (w *Worker) reportFailure(ctx context.Context, t *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	w.log.Warn().
		Err(err).
		Str("type", t.Type()).
		Int("retried", retried).
		Int("max_retry", maxRetry).
		Msg("[Worker] Reveal task failed")
}
