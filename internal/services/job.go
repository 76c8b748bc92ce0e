package services

import (
	"context"
	"errors"
	"time"

	"github.com/huangang/campusgig/internal/config"
	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type JobService struct {
	db           *gorm.DB
	now          Clock
	reviewWindow time.Duration
}

func NewJobService(db *gorm.DB, cfg *config.ReviewConfig) *JobService {
	days := cfg.WindowDays
	if days <= 0 {
		days = 14
	}
	return &JobService{
		db:           db,
		now:          SystemClock,
		reviewWindow: time.Duration(days) * 24 * time.Hour,
	}
}

// WithClock replaces the service clock.
func (s *JobService) WithClock(now Clock) *JobService {
	s.now = now
	return s
}

// TransitionRequest moves a job along the status graph. StudentID is
// required when hiring.
type TransitionRequest struct {
	Status    models.JobStatus `json:"status" binding:"required"`
	StudentID *uint            `json:"student_id"`
}

func (s *JobService) GetJob(ctx context.Context, id uint) (*models.Job, error) {
	return loadJob(s.db.WithContext(ctx), id, false)
}

// loadJob reads a job, optionally taking a row lock for the rest of the
// enclosing transaction.
func loadJob(tx *gorm.DB, id uint, lock bool) (*models.Job, error) {
	var job models.Job
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("job %d not found", id)
		}
		return nil, err
	}
	return &job, nil
}

// CompleteJob opens the review window. The status guard is repeated in the
// UPDATE so a concurrent second completion fails instead of moving the
// deadline.
func (s *JobService) CompleteJob(ctx context.Context, jobID, actorID uint) (*models.Job, error) {
	db := s.db.WithContext(ctx)

	job, err := loadJob(db, jobID, false)
	if err != nil {
		return nil, err
	}
	if !job.IsParty(actorID) {
		return nil, unauthorized("user %d is not a party to job %d", actorID, jobID)
	}
	if !isCompletable(job.Status) {
		return nil, invalidState("job %d cannot be completed from status %s", jobID, job.Status)
	}

	now := s.now()
	due := now.Add(s.reviewWindow)
	result := db.Model(&models.Job{}).
		Where("id = ? AND status IN ?", jobID, models.CompletableStatuses).
		Updates(map[string]interface{}{
			"status":          models.JobStatusReviewPending,
			"completed_at":    now,
			"review_due_date": due,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, invalidState("job %d was completed concurrently", jobID)
	}

	job, err = loadJob(db, jobID, false)
	if err != nil {
		return nil, err
	}

	logger.Infof("[Job] Job %d completed by user %d, reviews due %s", jobID, actorID, due.Format(time.RFC3339))
	LogJobEvent("Complete", "job completed, review window opened", &actorID, jobID, map[string]interface{}{
		"review_due_date": due,
	})
	return job, nil
}

func isCompletable(status models.JobStatus) bool {
	for _, s := range models.CompletableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Transition applies any edge of the status graph other than the two owned
// by the review workflow: entering review_pending goes through CompleteJob,
// leaving it for completed goes through FinalizeReviewWindow.
func (s *JobService) Transition(ctx context.Context, jobID, actorID uint, req *TransitionRequest) (*models.Job, error) {
	if !req.Status.Valid() {
		return nil, validationError("unknown job status %q", req.Status)
	}
	switch req.Status {
	case models.JobStatusReviewPending:
		return nil, invalidState("use complete to open the review window")
	case models.JobStatusCompleted:
		return nil, invalidState("job %d is completed once its review window resolves", jobID)
	}

	db := s.db.WithContext(ctx)
	job, err := loadJob(db, jobID, false)
	if err != nil {
		return nil, err
	}

	// Only the employer drives the posting lifecycle; either party may dispute.
	if req.Status == models.JobStatusDisputed {
		if !job.IsParty(actorID) {
			return nil, unauthorized("user %d is not a party to job %d", actorID, jobID)
		}
	} else if job.EmployerID != actorID {
		return nil, unauthorized("only the employer may move job %d to %s", jobID, req.Status)
	}

	if !job.Status.CanTransitionTo(req.Status) {
		return nil, invalidState("job %d cannot move from %s to %s", jobID, job.Status, req.Status)
	}

	updates := map[string]interface{}{"status": req.Status}
	if req.Status == models.JobStatusHired {
		if req.StudentID == nil || *req.StudentID == 0 {
			return nil, validationError("student_id is required to hire")
		}
		if *req.StudentID == job.EmployerID {
			return nil, validationError("an employer cannot hire themselves")
		}
		updates["hired_student_id"] = *req.StudentID
	}

	result := db.Model(&models.Job{}).
		Where("id = ? AND status = ?", jobID, job.Status).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, invalidState("job %d changed status concurrently", jobID)
	}

	from := job.Status
	job, err = loadJob(db, jobID, false)
	if err != nil {
		return nil, err
	}
	logger.Infof("[Job] Job %d moved %s -> %s by user %d", jobID, from, job.Status, actorID)
	LogJobEvent("Transition", string(from)+" -> "+string(job.Status), &actorID, jobID, nil)
	return job, nil
}

// FinalizeReviewWindow moves a review_pending job to completed once nothing
// is left to reveal: either both reviews are visible, or the deadline passed
// and every review that exists is visible. It reports whether the job moved.
func (s *JobService) FinalizeReviewWindow(ctx context.Context, jobID uint) (bool, error) {
	var finalized bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := loadJob(tx, jobID, true)
		if err != nil {
			return err
		}
		finalized, err = finalizeReviewWindowTx(tx, job, s.now())
		return err
	})
	if err != nil {
		return false, err
	}
	if finalized {
		logger.Infof("[Job] Review window for job %d finalized", jobID)
	}
	return finalized, nil
}

func finalizeReviewWindowTx(tx *gorm.DB, job *models.Job, now time.Time) (bool, error) {
	if job.Status != models.JobStatusReviewPending {
		return false, nil
	}

	var total, hidden int64
	if err := tx.Model(&models.Review{}).Where("job_id = ?", job.ID).Count(&total).Error; err != nil {
		return false, err
	}
	if err := tx.Model(&models.Review{}).Where("job_id = ? AND is_visible = ?", job.ID, false).Count(&hidden).Error; err != nil {
		return false, err
	}

	resolved := hidden == 0 && (total >= 2 || job.ReviewDeadlinePassed(now))
	if !resolved {
		return false, nil
	}

	result := tx.Model(&models.Job{}).
		Where("id = ? AND status = ?", job.ID, models.JobStatusReviewPending).
		Update("status", models.JobStatusCompleted)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		job.Status = models.JobStatusCompleted
		return true, nil
	}
	return false, nil
}
