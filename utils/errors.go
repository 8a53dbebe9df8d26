package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resume-ai-backend/internal/apperr"
	"resume-ai-backend/internal/logger"
)

// RespondWithError writes the standard error envelope.
func RespondWithError(c *gin.Context, status int, errorCode, message string, details gin.H) {
	body := gin.H{
		"error_code": errorCode,
		"message":    message,
	}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, body)
}

// statusForKind maps stable error kinds onto HTTP statuses.
func statusForKind(kind string) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindIndexUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindAllBackendsFailed, apperr.KindEmbedding, apperr.KindExtraction:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithAppError maps an application error onto the envelope,
// hiding internal details for unclassified errors.
func RespondWithAppError(c *gin.Context, err error) {
	kind := apperr.Kind(err)
	status := statusForKind(kind)

	message := "Internal server error"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Message
	} else {
		logger.Error("Unclassified error reached the API layer", "error", err)
	}

	RespondWithError(c, status, kind, message, nil)
}
