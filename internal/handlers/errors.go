package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/campusgig/internal/services"
	"github.com/huangang/campusgig/pkg/response"
)

// toAppError maps workflow errors to HTTP errors; the error kind becomes the
// reason so clients can branch without parsing messages.
func toAppError(err error) error {
	var we *services.WorkflowError
	if !errors.As(err, &we) {
		return err
	}

	var appErr *response.AppError
	switch we.Kind {
	case services.KindNotFound:
		appErr = response.NewNotFound(we.Message)
	case services.KindAuthorization, services.KindEditWindowExpired:
		appErr = response.NewForbidden(we.Message)
	case services.KindInvalidState, services.KindDuplicateReview, services.KindVisibilityViolated:
		appErr = response.NewConflict(we.Message)
	case services.KindValidation:
		appErr = response.NewBadRequest(we.Message)
	default:
		return err
	}
	return appErr.WithReason(string(we.Kind))
}

func respondError(c *gin.Context, err error) {
	response.Error(c, toAppError(err))
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
