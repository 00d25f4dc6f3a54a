package errors

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		code   ErrorCode
		status int
	}{
		{"not found", NotFound("post"), ErrNotFound, http.StatusNotFound},
		{"unauthorized", Unauthorized("no token"), ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden("admins only"), ErrForbidden, http.StatusForbidden},
		{"conflict", Conflict("reaction"), ErrConflict, http.StatusConflict},
		{"validation", ValidationError("title", "required"), ErrValidation, http.StatusUnprocessableEntity},
		{"bad request", BadRequest("malformed cursor"), ErrBadRequest, http.StatusBadRequest},
		{"internal", InternalError("boom"), ErrInternalError, http.StatusInternalServerError},
		{"rate limited", RateLimited(""), ErrRateLimited, http.StatusTooManyRequests},
		{"unavailable", ServiceUnavailable("redis"), ErrServiceUnavail, http.StatusServiceUnavailable},
		{"timeout", Timeout("search"), ErrTimeout, http.StatusGatewayTimeout},
		{"gating", GatingRequired(""), ErrGatingRequired, http.StatusForbidden},
		{"upstream", Upstream("chain rpc"), ErrUpstream, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: board not found", NotFound("board").Error())
	assert.Equal(t,
		"VALIDATION_ERROR: must be positive (field: limit)",
		ValidationError("limit", "must be positive").Error())
}

func TestWireShapeOmitsStatus(t *testing.T) {
	data, err := json.Marshal(NotFound("comment"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "NOT_FOUND", decoded["code"])
	assert.Equal(t, "comment not found", decoded["message"])
	assert.NotContains(t, decoded, "status")
	assert.NotContains(t, decoded, "field")
	assert.NotContains(t, decoded, "details")
}

func TestWithDetails(t *testing.T) {
	apiErr := RateLimited("").WithDetails("retry after 30 seconds")
	assert.Equal(t, "rate limit exceeded", apiErr.Message)
	assert.Equal(t, "retry after 30 seconds", apiErr.Details)

	data, err := json.Marshal(apiErr)
	require.NoError(t, err)
	assert.Contains(t, string(data), "retry after 30 seconds")
}
