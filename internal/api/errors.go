package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/member-dashboard-api/internal/identity"
	"github.com/member-dashboard-api/internal/service"
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrTokenRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, identity.ErrCrossAccountPassword):
		return http.StatusForbidden
	case errors.Is(err, service.ErrBadRequest),
		errors.Is(err, service.ErrValidation),
		errors.Is(err, identity.ErrCurrentPassword):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrImportInProgress),
		errors.Is(err, service.ErrImportFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Internal errors are logged and hidden.
func respondError(c *gin.Context, err error, msg string) {
	status := HTTPStatusFromError(err)
	if status == http.StatusInternalServerError {
		loggerFrom(c).Error().Err(err).Msg(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	body := gin.H{"error": err.Error()}
	var verrs service.ValidationErrors
	if errors.As(err, &verrs) {
		body["error"] = service.ErrValidation.Error()
		body["details"] = verrs
	}
	c.JSON(status, body)
}
