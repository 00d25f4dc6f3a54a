package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/errors"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/middleware"
)

// ErrorResponse is the wire shape of every error this API returns.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// RespondWithAPIError sends a structured API error response. Server
// faults log at error level, client mistakes at warn.
func RespondWithAPIError(c *gin.Context, apiErr *errors.APIError) {
	fields := []zap.Field{
		zap.String("code", string(apiErr.Code)),
		zap.String("message", apiErr.Message),
		logger.WithStatus(apiErr.Status),
	}
	if apiErr.Field != "" {
		fields = append(fields, zap.String("field", apiErr.Field))
	}
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Log.Error("API error", fields...)
	} else {
		logger.Log.Warn("API error", fields...)
	}

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "unmatched"
	}
	middleware.RecordError(string(apiErr.Code), endpoint)

	c.JSON(apiErr.Status, ErrorResponse{
		Code:    string(apiErr.Code),
		Message: apiErr.Message,
		Field:   apiErr.Field,
		Details: apiErr.Details,
	})
}

// RespondUnauthorized sends a 401 Unauthorized response
func RespondUnauthorized(c *gin.Context, message ...string) {
	msg := "user not authenticated"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Unauthorized(msg))
}

// RespondNotFound sends a 404 Not Found response
func RespondNotFound(c *gin.Context, resource string) {
	RespondWithAPIError(c, errors.NotFound(resource))
}

// RespondBadRequest sends a 400 Bad Request response
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "bad request"
	}
	RespondWithAPIError(c, errors.BadRequest(message))
}

// RespondForbidden sends a 403 Forbidden response
func RespondForbidden(c *gin.Context, message ...string) {
	msg := "forbidden"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Forbidden(msg))
}

// RespondInternalError sends a 500 Internal Server Error response
func RespondInternalError(c *gin.Context, message string) {
	if message == "" {
		message = "internal server error"
	}
	RespondWithAPIError(c, errors.InternalError(message))
}

// RespondConflict sends a 409 Conflict response
func RespondConflict(c *gin.Context, resource string) {
	RespondWithAPIError(c, errors.Conflict(resource))
}

// RespondValidationError sends a 422 Unprocessable Entity response
func RespondValidationError(c *gin.Context, field, message string) {
	RespondWithAPIError(c, errors.ValidationError(field, message))
}

// RespondGatingRequired sends a 403 response with the gating error code so
// clients can route the user into the verification flow
func RespondGatingRequired(c *gin.Context, message ...string) {
	msg := ""
	if len(message) > 0 {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.GatingRequired(msg))
}

// RespondUpstream sends a 502 response for failed third-party calls
func RespondUpstream(c *gin.Context, service string) {
	RespondWithAPIError(c, errors.Upstream(service))
}
