package services

import (
	"context"
	"time"

	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/pkg/logger"
	"gorm.io/gorm"
)

// RevealNotifier is told about reviews that just became visible. It must
// not block: delivery failures are its own concern.
type RevealNotifier interface {
	NotifyRevealed(ctx context.Context, job *models.Job, reviews []models.Review)
}

type nopNotifier struct{}

func (nopNotifier) NotifyRevealed(context.Context, *models.Job, []models.Review) {}

// VisibilityGate decides when hidden reviews of a job become readable.
type VisibilityGate struct {
	db       *gorm.DB
	now      Clock
	notifier RevealNotifier
}

func NewVisibilityGate(db *gorm.DB, notifier RevealNotifier) *VisibilityGate {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &VisibilityGate{db: db, now: SystemClock, notifier: notifier}
}

// WithClock replaces the gate clock.
func (g *VisibilityGate) WithClock(now Clock) *VisibilityGate {
	g.now = now
	return g
}

// Evaluate re-runs the reveal rules for one job and returns the reviews it
// made visible. Running it again is a no-op.
func (g *VisibilityGate) Evaluate(ctx context.Context, jobID uint) ([]models.Review, error) {
	var (
		job      *models.Job
		revealed []models.Review
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		job, err = loadJob(tx, jobID, true)
		if err != nil {
			return err
		}
		revealed, err = evaluateTx(tx, job, g.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	g.afterCommit(ctx, job, revealed)
	return revealed, nil
}

func (g *VisibilityGate) afterCommit(ctx context.Context, job *models.Job, revealed []models.Review) {
	if len(revealed) == 0 {
		return
	}
	logger.Infof("[Visibility] Revealed %d review(s) for job %d", len(revealed), job.ID)
	ids := make([]uint, 0, len(revealed))
	for _, r := range revealed {
		ids = append(ids, r.ID)
	}
	LogJobEvent("Reveal", "reviews revealed", nil, job.ID, map[string]interface{}{"review_ids": ids})
	g.notifier.NotifyRevealed(ctx, job, revealed)
}

// evaluateTx must run inside a transaction that holds the job row lock.
//
// Two reviews reveal together under one timestamp. A lone review reveals
// only after the review deadline.
func evaluateTx(tx *gorm.DB, job *models.Job, now time.Time) ([]models.Review, error) {
	var reviews []models.Review
	if err := tx.Preload("Reviewer").Where("job_id = ?", job.ID).Order("id").Find(&reviews).Error; err != nil {
		return nil, err
	}

	var hidden []models.Review
	for _, r := range reviews {
		if !r.IsVisible {
			hidden = append(hidden, r)
		}
	}
	if len(hidden) == 0 {
		return nil, nil
	}

	var q *gorm.DB
	switch {
	case len(reviews) >= 2:
		q = tx.Model(&models.Review{}).Where("job_id = ? AND is_visible = ?", job.ID, false)
	case len(reviews) == 1 && job.ReviewDeadlinePassed(now):
		q = tx.Model(&models.Review{}).Where("id = ? AND is_visible = ?", reviews[0].ID, false)
	default:
		return nil, nil
	}

	result := q.Updates(map[string]interface{}{
		"is_visible": true,
		"visible_at": now,
	})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	for i := range hidden {
		hidden[i].IsVisible = true
		hidden[i].VisibleAt = &now
	}
	return hidden, nil
}
