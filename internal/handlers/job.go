package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/campusgig/internal/middleware"
	"github.com/huangang/campusgig/internal/services"
	"github.com/huangang/campusgig/pkg/response"
)

type JobHandler struct {
	jobService         *services.JobService
	eligibilityService *services.EligibilityService
}

func NewJobHandler(jobService *services.JobService, eligibilityService *services.EligibilityService) *JobHandler {
	return &JobHandler{
		jobService:         jobService,
		eligibilityService: eligibilityService,
	}
}

// Get returns a job
// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := h.jobService.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, job)
}

// Complete opens the review window
// POST /api/jobs/:id/complete
func (h *JobHandler) Complete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := h.jobService.CompleteJob(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, job)
}

// Transition moves a job along its lifecycle
// POST /api/jobs/:id/transition
func (h *JobHandler) Transition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req services.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	job, err := h.jobService.Transition(c.Request.Context(), id, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, job)
}

// Eligibility tells the caller whether they may review the job now
// GET /api/jobs/:id/review-eligibility
func (h *JobHandler) Eligibility(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.eligibilityService.CheckEligibility(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, result)
}
