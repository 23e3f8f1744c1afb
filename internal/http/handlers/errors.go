// Package handlers implements the archive's HTTP endpoints. Handlers are
// transport-thin: they validate input, call the services and map results
// and typed errors onto the JSON envelope defined in response.go.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-archive-backend/internal/services"
)

// Stable error codes. Clients branch on these, not on messages.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
	ErrCodeAlreadySubmitted   = "already_submitted"
	ErrCodeQuotaExceeded      = "quota_exceeded"
	ErrCodeSubmissionsOff     = "submissions_disabled"
	ErrCodeSubmissionFailed   = "submission_failed"
	ErrCodeStorageWriteFailed = "storage_write_failed"
	ErrCodeTimeout            = "timeout"
	ErrCodeInternal           = "internal_error"
)

// respondError maps a service error onto status, code and envelope.
func respondError(c *gin.Context, err error) {
	var (
		quota *services.QuotaExceededError
		sub   *services.SubmissionFailedError
	)
	switch {
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidURL),
		errors.Is(err, services.ErrInvalidLanguage),
		errors.Is(err, services.ErrInvalidGeolocation),
		errors.Is(err, services.ErrInvalidLimit):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrAlreadySubmitted):
		fail(c, http.StatusConflict, ErrCodeAlreadySubmitted, err.Error())
	case errors.As(err, &quota):
		status, code := http.StatusTooManyRequests, ErrCodeQuotaExceeded
		if !quota.Enabled {
			status, code = http.StatusForbidden, ErrCodeSubmissionsOff
		}
		enabled, submitted, limit := quota.Enabled, quota.Submitted, quota.Limit
		abort(c, status, ErrorResponse{
			Code:      code,
			Message:   err.Error(),
			Enabled:   &enabled,
			Submitted: &submitted,
			Limit:     &limit,
		})
	case errors.As(err, &sub):
		fail(c, http.StatusBadGateway, ErrCodeSubmissionFailed, err.Error())
	case errors.Is(err, services.ErrStorageWrite):
		fail(c, http.StatusInternalServerError, ErrCodeStorageWriteFailed, "failed to write archive storage")
		_ = c.Error(err)
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "operation timed out")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		_ = c.Error(err)
	}
}
