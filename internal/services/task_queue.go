package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/campusgig/internal/config"
	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/pkg/logger"
)

const (
	TaskTypeReviewRevealed = "review:revealed"
)

// RevealTask is the notification payload for one revealed review. It is
// built from the anonymized view, so an anonymous reviewer is never named.
type RevealTask struct {
	ReviewID     uint      `json:"review_id"`
	JobID        uint      `json:"job_id"`
	JobTitle     string    `json:"job_title"`
	ReviewerID   uint      `json:"reviewer_id,omitempty"`
	ReviewerName string    `json:"reviewer_name"`
	RevieweeID   uint      `json:"reviewee_id"`
	ReviewerRole string    `json:"reviewer_role"`
	Rating       int       `json:"rating"`
	Anonymous    bool      `json:"anonymous"`
	VisibleAt    time.Time `json:"visible_at"`
	// true party ids, used only to route SSE events
	PartyIDs []uint `json:"party_ids"`
}

// NewRevealTask builds the task for review r of job.
func NewRevealTask(job *models.Job, r *models.Review) *RevealTask {
	view := NewReviewView(r, 0)
	task := &RevealTask{
		ReviewID:     view.ID,
		JobID:        view.JobID,
		JobTitle:     job.Title,
		ReviewerID:   view.ReviewerID,
		ReviewerName: view.ReviewerName,
		RevieweeID:   view.RevieweeID,
		ReviewerRole: view.ReviewerRole,
		Rating:       view.Rating,
		Anonymous:    view.Anonymous,
		PartyIDs:     []uint{r.ReviewerID, r.RevieweeID},
	}
	if view.VisibleAt != nil {
		task.VisibleAt = *view.VisibleAt
	}
	return task
}

// TaskQueue delivers reveal tasks to the processor.
type TaskQueue interface {
	Enqueue(task *RevealTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	Close() error
}

// NewTaskQueue returns an asynq queue when Redis is enabled and reachable,
// otherwise a SyncQueue.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	if !cfg.Enabled {
		logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
		return NewSyncQueue()
	}
	queue, err := NewAsyncQueue(cfg)
	if err != nil {
		logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
		return NewSyncQueue()
	}
	logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Addr)
	return queue
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	// Listing queues fails fast when Redis is unreachable.
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(task *RevealTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeReviewRevealed, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue(notificationQueue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Uint("review_id", task.ReviewID).Msg("[AsyncQueue] Reveal task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue without Redis: each task runs in its own
// goroutine.
type SyncQueue struct {
	processor func(context.Context, *RevealTask) error
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor func(context.Context, *RevealTask) error) {
	q.processor = processor
}

func (q *SyncQueue) Enqueue(task *RevealTask) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] No processor set, reveal task for review %d dropped", task.ReviewID)
		return nil
	}

	go func() {
		if err := q.processor(context.Background(), task); err != nil {
			logger.Warnf("[SyncQueue] Reveal task for review %d failed: %v", task.ReviewID, err)
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

func (q *SyncQueue) Close() error {
	return nil
}

// QueueNotifier is the RevealNotifier that turns reveals into queued tasks.
type QueueNotifier struct {
	queue TaskQueue
}

func NewQueueNotifier(queue TaskQueue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) NotifyRevealed(_ context.Context, job *models.Job, reviews []models.Review) {
	for i := range reviews {
		task := NewRevealTask(job, &reviews[i])
		if err := n.queue.Enqueue(task); err != nil {
			logger.Errorf("[Notification] Failed to enqueue reveal of review %d: %v", task.ReviewID, err)
		}
	}
}
