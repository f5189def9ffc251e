package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dubwise/dubwise-backend/internal/http/response"
	"github.com/dubwise/dubwise-backend/internal/services"
)

// respondServiceError maps the service sentinels onto HTTP statuses. Anything
// unmapped is a 500 so storage or database faults never masquerade as client
// errors.
func respondServiceError(c *gin.Context, err error) {
	var unsupported *services.UnsupportedLanguageError
	switch {
	case errors.As(err, &unsupported):
		response.RespondError(c, http.StatusUnprocessableEntity, "unsupported_language", err)
	case errors.Is(err, services.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrForbidden):
		response.RespondError(c, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, services.ErrQuotaExceeded):
		response.RespondError(c, http.StatusTooManyRequests, "quota_exceeded", err)
	case errors.Is(err, services.ErrJobCompleted):
		response.RespondError(c, http.StatusBadRequest, "job_completed", err)
	case errors.Is(err, services.ErrUploadTooBig):
		response.RespondError(c, http.StatusRequestEntityTooLarge, "upload_too_large", err)
	case errors.Is(err, services.ErrMissingRaw):
		response.RespondError(c, http.StatusBadRequest, "missing_raw_upload", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
