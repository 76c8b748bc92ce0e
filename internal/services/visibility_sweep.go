package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/campusgig/internal/config"
	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/pkg/logger"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	sweepLockName = "review_visibility_sweep"
	sweepLockKey  = "global"
	sweepLockTTL  = 4 * time.Minute
)

// SweepResult reports what one sweep pass did.
type SweepResult struct {
	JobsScanned   int  `json:"jobs_scanned"`
	Revealed      int  `json:"revealed"`
	JobsFinalized int  `json:"jobs_finalized"`
	Errors        int  `json:"errors"`
	Skipped       bool `json:"skipped"` // another instance holds the lease
}

// VisibilitySweep reveals one-sided reviews whose deadline passed. Nothing
// else would trigger the gate for a job the other party never reviews.
type VisibilitySweep struct {
	db        *gorm.DB
	gate      *VisibilityGate
	jobs      *JobService
	now       Clock
	spec      string
	batchSize int
	owner     string
	log       zerolog.Logger

	cronScheduler *cron.Cron
}

func NewVisibilitySweep(db *gorm.DB, cfg *config.ReviewConfig, gate *VisibilityGate, jobs *JobService) *VisibilitySweep {
	spec := cfg.SweepSpec
	if spec == "" {
		spec = "@every 5m"
	}
	batch := cfg.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &VisibilitySweep{
		db:        db,
		gate:      gate,
		jobs:      jobs,
		now:       SystemClock,
		spec:      spec,
		batchSize: batch,
		owner:     uuid.NewString(),
		log:       logger.Component("sweep"),
	}
}

// WithClock replaces the sweep clock. The gate and job service keep their own.
func (s *VisibilitySweep) WithClock(now Clock) *VisibilitySweep {
	s.now = now
	return s
}

func (s *VisibilitySweep) Start() error {
	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.Errorf("[Sweep] Run failed: %v", err)
		}
	}); err != nil {
		return err
	}
	s.cronScheduler.Start()
	logger.Infof("[Sweep] Scheduled (spec: %s, batch: %d, owner: %s)", s.spec, s.batchSize, s.owner)
	return nil
}

// Stop waits for a running pass to finish.
func (s *VisibilitySweep) Stop() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// RunOnce scans every overdue job with hidden reviews, or still awaiting
// finalization, and runs the gate on it. Per-job failures are counted and
// logged; the pass carries on.
func (s *VisibilitySweep) RunOnce(ctx context.Context) (*SweepResult, error) {
	db := s.db.WithContext(ctx)
	now := s.now()
	result := &SweepResult{}

	acquired, err := models.AcquireSchedulerLock(db, sweepLockName, sweepLockKey, s.owner, now, sweepLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.log.Debug().Str("owner", s.owner).Msg("[Sweep] Lease held elsewhere, skipping")
		result.Skipped = true
		return result, nil
	}
	defer func() {
		if err := models.ReleaseSchedulerLock(db, sweepLockName, sweepLockKey, s.owner); err != nil {
			logger.Warnf("[Sweep] Failed to release lease: %v", err)
		}
	}()

	var lastID uint
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ids, err := s.overdueJobIDs(db, now, lastID)
		if err != nil {
			return result, err
		}
		if len(ids) == 0 {
			break
		}
		lastID = ids[len(ids)-1]

		for _, id := range ids {
			result.JobsScanned++
			revealed, err := s.gate.Evaluate(ctx, id)
			if err != nil {
				result.Errors++
				s.recordFailure("Evaluate", id, err)
				continue
			}
			result.Revealed += len(revealed)

			finalized, err := s.jobs.FinalizeReviewWindow(ctx, id)
			if err != nil {
				result.Errors++
				s.recordFailure("Finalize", id, err)
				continue
			}
			if finalized {
				result.JobsFinalized++
			}
		}

		if len(ids) < s.batchSize {
			break
		}
	}

	if result.JobsScanned > 0 {
		s.log.Info().
			Int("jobs", result.JobsScanned).
			Int("revealed", result.Revealed).
			Int("finalized", result.JobsFinalized).
			Int("errors", result.Errors).
			Msg("[Sweep] Pass complete")
	}
	return result, nil
}

// recordFailure logs a per-job failure and keeps it in system_logs so an
// admin can find jobs the sweep keeps tripping over.
func (s *VisibilitySweep) recordFailure(step string, jobID uint, err error) {
	s.log.Error().Err(err).Uint("job_id", jobID).Str("step", step).Msg("[Sweep] Job failed")
	LogError(ModuleReviews, "Sweep"+step, fmt.Sprintf("sweep %s failed for job %d", step, jobID), nil, "", "", map[string]interface{}{
		"job_id": jobID,
		"error":  err.Error(),
	})
}

// overdueJobIDs pages by id so jobs the gate leaves untouched are not
// rescanned within one pass.
func (s *VisibilitySweep) overdueJobIDs(db *gorm.DB, now time.Time, afterID uint) ([]uint, error) {
	hidden := db.Model(&models.Review{}).
		Select("1").
		Where("reviews.job_id = jobs.id AND reviews.is_visible = ?", false)

	var ids []uint
	err := db.Model(&models.Job{}).
		Where("jobs.id > ?", afterID).
		Where("jobs.review_due_date IS NOT NULL AND jobs.review_due_date < ?", now).
		Where("jobs.status = ? OR EXISTS (?)", models.JobStatusReviewPending, hidden).
		Order("jobs.id").
		Limit(s.batchSize).
		Pluck("jobs.id", &ids).Error
	return ids, err
}
