package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/huangang/campusgig/internal/config"
	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/pkg/logger"
	"gorm.io/gorm"
)

const (
	DefaultReviewPageSize = 20
	MaxReviewPageSize     = 100
	AnonymousReviewerName = "Anonymous"
)

// CreateReviewRequest carries only what the reviewer chooses. The reviewee
// and the reviewer role are derived from the job.
type CreateReviewRequest struct {
	JobID           uint           `json:"job_id" binding:"required"`
	Rating          int            `json:"rating"`
	Comment         string         `json:"comment"`
	CategoryRatings map[string]int `json:"category_ratings"`
	Anonymous       bool           `json:"anonymous"`
}

// UpdateReviewRequest is a partial update; nil fields are left unchanged.
type UpdateReviewRequest struct {
	Rating          *int           `json:"rating"`
	Comment         *string        `json:"comment"`
	CategoryRatings map[string]int `json:"category_ratings"`
	Anonymous       *bool          `json:"anonymous"`
}

// ReviewView is a review as shown to one viewer. Anonymous reviews hide the
// reviewer from everyone except the reviewer.
type ReviewView struct {
	ID              uint                    `json:"id"`
	JobID           uint                    `json:"job_id"`
	ReviewerID      uint                    `json:"reviewer_id,omitempty"`
	ReviewerName    string                  `json:"reviewer_name"`
	RevieweeID      uint                    `json:"reviewee_id"`
	ReviewerRole    string                  `json:"reviewer_role"`
	Rating          int                     `json:"rating"`
	Comment         string                  `json:"comment"`
	CategoryRatings *models.CategoryRatings `json:"category_ratings,omitempty"`
	Anonymous       bool                    `json:"anonymous"`
	IsVisible       bool                    `json:"is_visible"`
	VisibleAt       *time.Time              `json:"visible_at"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// NewReviewView builds the view of r for viewerID. Pass 0 for a viewer that
// is nobody in particular, such as an outbound notification.
func NewReviewView(r *models.Review, viewerID uint) ReviewView {
	v := ReviewView{
		ID:              r.ID,
		JobID:           r.JobID,
		ReviewerID:      r.ReviewerID,
		RevieweeID:      r.RevieweeID,
		ReviewerRole:    r.ReviewerRole,
		Rating:          r.Rating,
		Comment:         r.Comment,
		CategoryRatings: r.CategoryRatings,
		Anonymous:       r.Anonymous,
		IsVisible:       r.IsVisible,
		VisibleAt:       r.VisibleAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Reviewer != nil {
		v.ReviewerName = r.Reviewer.DisplayName()
	}
	if r.Anonymous && viewerID != r.ReviewerID {
		v.ReviewerID = 0
		v.ReviewerName = AnonymousReviewerName
	}
	return v
}

func newReviewViews(reviews []models.Review, viewerID uint) []ReviewView {
	views := make([]ReviewView, 0, len(reviews))
	for i := range reviews {
		views = append(views, NewReviewView(&reviews[i], viewerID))
	}
	return views
}

// UserReviews is one page of the visible reviews a user received.
type UserReviews struct {
	Reviews       []ReviewView `json:"reviews"`
	Total         int64        `json:"total"`
	AverageRating float64      `json:"average_rating"`
	TotalReviews  int64        `json:"total_reviews"`
	Limit         int          `json:"limit"`
	Offset        int          `json:"offset"`
}

type ReviewService struct {
	db         *gorm.DB
	now        Clock
	editWindow time.Duration
	gate       *VisibilityGate
}

func NewReviewService(db *gorm.DB, cfg *config.ReviewConfig, gate *VisibilityGate) *ReviewService {
	hours := cfg.EditWindowHours
	if hours <= 0 {
		hours = 24
	}
	return &ReviewService{
		db:         db,
		now:        SystemClock,
		editWindow: time.Duration(hours) * time.Hour,
		gate:       gate,
	}
}

// WithClock replaces the service clock.
func (s *ReviewService) WithClock(now Clock) *ReviewService {
	s.now = now
	return s
}

func validateComment(comment string) error {
	if utf8.RuneCountInString(comment) > models.MaxCommentLength {
		return validationError("comment must be at most %d characters", models.MaxCommentLength)
	}
	return nil
}

func validateRating(rating int) error {
	if !models.ValidRating(rating) {
		return validationError("rating must be between %d and %d", models.MinRating, models.MaxRating)
	}
	return nil
}

// encodeCategoryRatings matches the json serializer's column format. An
// empty set clears the column.
func encodeCategoryRatings(cr *models.CategoryRatings) (interface{}, error) {
	if cr == nil {
		return nil, nil
	}
	b, err := json.Marshal(cr)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func buildCategoryRatings(reviewerRole string, raw map[string]int) (*models.CategoryRatings, error) {
	cr, err := models.BuildCategoryRatings(reviewerRole, raw)
	if err != nil {
		return nil, validationError("%s", err.Error())
	}
	return cr, nil
}

// CreateReview stores a hidden review and runs the visibility gate in the
// same transaction, so the returned review already reflects any reveal.
func (s *ReviewService) CreateReview(ctx context.Context, actorID uint, req *CreateReviewRequest) (*ReviewView, error) {
	if err := validateRating(req.Rating); err != nil {
		return nil, err
	}
	if err := validateComment(req.Comment); err != nil {
		return nil, err
	}

	var (
		review   models.Review
		job      *models.Job
		revealed []models.Review
	)
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		job, err = loadJob(tx, req.JobID, true)
		if err != nil {
			return err
		}

		eligibility, err := checkEligibility(tx, job, actorID)
		if err != nil {
			return err
		}
		if !eligibility.Eligible {
			return eligibilityError(eligibility, job.ID, actorID)
		}

		revieweeID, reviewerRole, ok := job.Counterpart(actorID)
		if !ok {
			return unauthorized("user %d is not a party to job %d", actorID, job.ID)
		}
		if revieweeID == actorID {
			return validationError("a user cannot review themselves")
		}

		categories, err := buildCategoryRatings(reviewerRole, req.CategoryRatings)
		if err != nil {
			return err
		}

		review = models.Review{
			JobID:           job.ID,
			ReviewerID:      actorID,
			RevieweeID:      revieweeID,
			ReviewerRole:    reviewerRole,
			Rating:          req.Rating,
			Comment:         req.Comment,
			CategoryRatings: categories,
			Anonymous:       req.Anonymous,
			IsVisible:       false,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(KindDuplicateReview, "user %d already reviewed job %d", actorID, job.ID)
			}
			return err
		}

		revealed, err = evaluateTx(tx, job, now)
		if err != nil {
			return err
		}
		if len(revealed) > 0 {
			if _, err := finalizeReviewWindowTx(tx, job, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range revealed {
		if r.ID == review.ID {
			review.IsVisible = true
			review.VisibleAt = r.VisibleAt
		}
	}

	logger.Infof("[Review] Review %d created for job %d by user %d (visible=%v)", review.ID, job.ID, actorID, review.IsVisible)
	LogJobEvent("Create", "review submitted", &actorID, job.ID, map[string]interface{}{"review_id": review.ID})
	if s.gate != nil {
		s.gate.afterCommit(ctx, job, revealed)
	}

	return s.GetReview(ctx, review.ID, actorID)
}

func (s *ReviewService) findReview(db *gorm.DB, id uint) (*models.Review, error) {
	var review models.Review
	if err := db.Preload("Reviewer").First(&review, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("review %d not found", id)
		}
		return nil, err
	}
	return &review, nil
}

// GetReview returns a review the viewer is allowed to read: any visible
// review, or the viewer's own hidden one.
func (s *ReviewService) GetReview(ctx context.Context, id, viewerID uint) (*ReviewView, error) {
	review, err := s.findReview(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !review.IsVisible && review.ReviewerID != viewerID {
		return nil, notFound("review %d not found", id)
	}
	v := NewReviewView(review, viewerID)
	return &v, nil
}

// checkMutable applies the author, visibility and edit-window rules in
// that order.
func (s *ReviewService) checkMutable(review *models.Review, actorID uint, now time.Time) error {
	if review.ReviewerID != actorID {
		return unauthorized("only the author may change review %d", review.ID)
	}
	if review.IsVisible {
		return newError(KindVisibilityViolated, "review %d is already visible and can no longer change", review.ID)
	}
	if now.Sub(review.CreatedAt) > s.editWindow {
		return newError(KindEditWindowExpired, "review %d can only be changed within %s of submission", review.ID, s.editWindow)
	}
	return nil
}

// conditionalFailure explains why a guarded UPDATE or DELETE matched no row.
func (s *ReviewService) conditionalFailure(db *gorm.DB, id, actorID uint, now time.Time) error {
	current, err := s.findReview(db, id)
	if err != nil {
		return err
	}
	if err := s.checkMutable(current, actorID, now); err != nil {
		return err
	}
	return newError(KindVisibilityViolated, "review %d changed concurrently", id)
}

// UpdateReview edits the author's hidden review within the edit window. The
// UPDATE itself is guarded by both rules so a concurrent reveal always wins.
func (s *ReviewService) UpdateReview(ctx context.Context, id, actorID uint, req *UpdateReviewRequest) (*ReviewView, error) {
	db := s.db.WithContext(ctx)
	now := s.now()

	review, err := s.findReview(db, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkMutable(review, actorID, now); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Rating != nil {
		if err := validateRating(*req.Rating); err != nil {
			return nil, err
		}
		updates["rating"] = *req.Rating
	}
	if req.Comment != nil {
		if err := validateComment(*req.Comment); err != nil {
			return nil, err
		}
		updates["comment"] = *req.Comment
	}
	if req.CategoryRatings != nil {
		categories, err := buildCategoryRatings(review.ReviewerRole, req.CategoryRatings)
		if err != nil {
			return nil, err
		}
		// written pre-encoded; map updates do not go through the field serializer
		encoded, err := encodeCategoryRatings(categories)
		if err != nil {
			return nil, err
		}
		updates["category_ratings"] = encoded
	}
	if req.Anonymous != nil {
		updates["anonymous"] = *req.Anonymous
	}
	if len(updates) == 0 {
		return nil, validationError("nothing to update")
	}
	updates["updated_at"] = now

	result := db.Model(&models.Review{}).
		Where("id = ? AND reviewer_id = ? AND is_visible = ? AND created_at >= ?", id, actorID, false, now.Add(-s.editWindow)).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, s.conditionalFailure(db, id, actorID, now)
	}

	logger.Infof("[Review] Review %d updated by user %d", id, actorID)
	LogJobEvent("Update", "review updated", &actorID, review.JobID, map[string]interface{}{"review_id": id})
	return s.GetReview(ctx, id, actorID)
}

// DeleteReview withdraws the author's hidden review within the edit window.
func (s *ReviewService) DeleteReview(ctx context.Context, id, actorID uint) error {
	db := s.db.WithContext(ctx)
	now := s.now()

	review, err := s.findReview(db, id)
	if err != nil {
		return err
	}
	if err := s.checkMutable(review, actorID, now); err != nil {
		return err
	}

	result := db.Where("id = ? AND reviewer_id = ? AND is_visible = ? AND created_at >= ?", id, actorID, false, now.Add(-s.editWindow)).
		Delete(&models.Review{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.conditionalFailure(db, id, actorID, now)
	}

	logger.Infof("[Review] Review %d withdrawn by user %d", id, actorID)
	LogJobEvent("Delete", "review withdrawn", &actorID, review.JobID, map[string]interface{}{"review_id": id})
	return nil
}

// GetJobReviews lists the visible reviews of a job plus the viewer's own
// pending submission.
func (s *ReviewService) GetJobReviews(ctx context.Context, jobID, viewerID uint) ([]ReviewView, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadJob(db, jobID, false); err != nil {
		return nil, err
	}

	var reviews []models.Review
	q := db.Preload("Reviewer").Where("job_id = ?", jobID)
	if viewerID != 0 {
		q = q.Where("is_visible = ? OR reviewer_id = ?", true, viewerID)
	} else {
		q = q.Where("is_visible = ?", true)
	}
	if err := q.Order("created_at ASC, id ASC").Find(&reviews).Error; err != nil {
		return nil, err
	}
	return newReviewViews(reviews, viewerID), nil
}

// GetUserReviews pages through the visible reviews userID received, newest
// reveal first, with the aggregate over all of them.
func (s *ReviewService) GetUserReviews(ctx context.Context, userID, viewerID uint, limit, offset int) (*UserReviews, error) {
	if limit <= 0 {
		limit = DefaultReviewPageSize
	}
	if limit > MaxReviewPageSize {
		limit = MaxReviewPageSize
	}
	if offset < 0 {
		offset = 0
	}

	db := s.db.WithContext(ctx)
	summary, err := ratingSummary(db, userID)
	if err != nil {
		return nil, err
	}

	var reviews []models.Review
	if err := db.Preload("Reviewer").
		Where("reviewee_id = ? AND is_visible = ?", userID, true).
		Order("visible_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&reviews).Error; err != nil {
		return nil, err
	}

	return &UserReviews{
		Reviews:       newReviewViews(reviews, viewerID),
		Total:         summary.Total,
		AverageRating: summary.Average(),
		TotalReviews:  summary.Total,
		Limit:         limit,
		Offset:        offset,
	}, nil
}
