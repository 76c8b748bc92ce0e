package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/campusgig/pkg/logger"
)

// Response is the envelope of every API reply. Code is 0 on success and the
// HTTP status otherwise.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError is an error that knows how it should be rendered.
type AppError struct {
	HTTPStatus int
	Code       int
	Reason     string // machine-readable, e.g. "duplicate_review"
	Message    string
}

func (e *AppError) Error() string {
	return e.Message
}

// WithReason returns a copy tagged with reason.
func (e *AppError) WithReason(reason string) *AppError {
	cp := *e
	cp.Reason = reason
	return &cp
}

func newAppError(status int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: status, Message: msg}
}

func NewBadRequest(msg string) *AppError      { return newAppError(http.StatusBadRequest, msg) }
func NewUnauthorized(msg string) *AppError    { return newAppError(http.StatusUnauthorized, msg) }
func NewForbidden(msg string) *AppError       { return newAppError(http.StatusForbidden, msg) }
func NewNotFound(msg string) *AppError        { return newAppError(http.StatusNotFound, msg) }
func NewConflict(msg string) *AppError        { return newAppError(http.StatusConflict, msg) }
func NewTooManyRequests(msg string) *AppError { return newAppError(http.StatusTooManyRequests, msg) }
func NewServerError(msg string) *AppError     { return newAppError(http.StatusInternalServerError, msg) }

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: "ok", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Message: "created", Data: data})
}

// Error renders err. An *AppError anywhere in the chain sets the status,
// code and reason; anything else is logged and hidden behind a 500.
func Error(c *gin.Context, err error) {
	c.JSON(render(c, err))
}

// Abort renders err like Error and stops the handler chain. Middleware
// rejects requests with it.
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(render(c, err))
}

func render(c *gin.Context, err error) (int, Response) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unhandled error")
		appErr = NewServerError("internal server error")
	}
	return appErr.HTTPStatus, Response{
		Code:    appErr.Code,
		Message: appErr.Message,
		Reason:  appErr.Reason,
	}
}

func BadRequest(c *gin.Context, msg string)   { Error(c, NewBadRequest(msg)) }
func Unauthorized(c *gin.Context, msg string) { Error(c, NewUnauthorized(msg)) }
