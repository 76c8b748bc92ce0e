package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/campusgig/internal/middleware"
	"github.com/huangang/campusgig/internal/services"
	"github.com/huangang/campusgig/pkg/response"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
	statsService  *services.StatsService
	sweep         *services.VisibilitySweep
}

func NewReviewHandler(reviewService *services.ReviewService, statsService *services.StatsService, sweep *services.VisibilitySweep) *ReviewHandler {
	return &ReviewHandler{
		reviewService: reviewService,
		statsService:  statsService,
		sweep:         sweep,
	}
}

// Create submits a review
// POST /api/reviews
func (h *ReviewHandler) Create(c *gin.Context) {
	var req services.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	review, err := h.reviewService.CreateReview(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, review)
}

// Update edits a hidden review
// PUT /api/reviews/:id
func (h *ReviewHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	review, err := h.reviewService.UpdateReview(c.Request.Context(), id, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, review)
}

// Delete withdraws a hidden review
// DELETE /api/reviews/:id
func (h *ReviewHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.reviewService.DeleteReview(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": id})
}

// Get returns a single review
// GET /api/reviews/:id
func (h *ReviewHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	review, err := h.reviewService.GetReview(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, review)
}

// ListForJob returns the reviews of a job the caller may see
// GET /api/jobs/:id/reviews
func (h *ReviewHandler) ListForJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	reviews, err := h.reviewService.GetJobReviews(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, reviews)
}

// ListForUser pages through the visible reviews a user received
// GET /api/users/:id/reviews?limit=&offset=
func (h *ReviewHandler) ListForUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultReviewPageSize)))
	if err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		response.BadRequest(c, "invalid offset")
		return
	}

	result, err := h.reviewService.GetUserReviews(c.Request.Context(), id, middleware.GetUserID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}

// Stats returns the rating summary of a user
// GET /api/users/:id/review-stats
func (h *ReviewHandler) Stats(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	stats, err := h.statsService.GetUserReviewStats(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, stats)
}

// Sweep runs one reveal pass immediately
// POST /api/admin/reviews/sweep
func (h *ReviewHandler) Sweep(c *gin.Context) {
	result, err := h.sweep.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}
