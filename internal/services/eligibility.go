package services

import (
	"context"

	"github.com/huangang/campusgig/internal/models"
	"gorm.io/gorm"
)

const (
	ReasonJobNotCompleted = "job not completed"
	ReasonNotAParty       = "not a party to this job"
	ReasonAlreadyReviewed = "already reviewed"
)

// Eligibility says whether a user may review a job now, and if not, why.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

type EligibilityService struct {
	db *gorm.DB
}

func NewEligibilityService(db *gorm.DB) *EligibilityService {
	return &EligibilityService{db: db}
}

// CheckEligibility is read-only. CreateReview repeats the same checks inside
// its write transaction.
func (s *EligibilityService) CheckEligibility(ctx context.Context, jobID, userID uint) (*Eligibility, error) {
	db := s.db.WithContext(ctx)
	job, err := loadJob(db, jobID, false)
	if err != nil {
		return nil, err
	}
	return checkEligibility(db, job, userID)
}

// checkEligibility evaluates the rules in order: status, party, duplicate.
func checkEligibility(tx *gorm.DB, job *models.Job, userID uint) (*Eligibility, error) {
	if !job.Status.AcceptsReviews() {
		return &Eligibility{Reason: ReasonJobNotCompleted}, nil
	}
	if !job.IsParty(userID) {
		return &Eligibility{Reason: ReasonNotAParty}, nil
	}

	var count int64
	if err := tx.Model(&models.Review{}).
		Where("job_id = ? AND reviewer_id = ?", job.ID, userID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return &Eligibility{Reason: ReasonAlreadyReviewed}, nil
	}
	return &Eligibility{Eligible: true}, nil
}

// eligibilityError converts a negative verdict to the matching workflow error.
func eligibilityError(e *Eligibility, jobID, userID uint) error {
	switch e.Reason {
	case ReasonJobNotCompleted:
		return invalidState("job %d is not accepting reviews", jobID)
	case ReasonNotAParty:
		return unauthorized("user %d is not a party to job %d", userID, jobID)
	case ReasonAlreadyReviewed:
		return newError(KindDuplicateReview, "user %d already reviewed job %d", userID, jobID)
	}
	return invalidState("user %d cannot review job %d", userID, jobID)
}
