// Package response renders the gateway's JSON envelopes, shared by the
// dispatch-facing Handle endpoint and the administrative handlers.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	APIError
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Error writes {error, request_id} (spec's exact 404 body shape), plus the
// trace id and an error code when the caller supplies one.
func Error(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		APIError:  APIError{Message: msg, Code: code},
		TraceID:   c.GetString("trace_id"),
		RequestID: c.GetString("request_id"),
	})
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
