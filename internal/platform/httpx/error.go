package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vendora/api/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxTraceLen   = 64
)

// Error represents the canonical JSON error envelope returned by the API.
// Detail entries are merged into the top level of the payload so clients can
// read fields like "from" and "to" without another level of nesting.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError constructs a new Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, maxCodeLen),
		Message: clip(message, maxMessageLen),
		Status:  status,
	}
}

// WithRequestID sets the request identifier on the error payload.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clip(id, maxCodeLen)
	return e
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(details))
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

func (e Error) envelope(ctx context.Context) (int, map[string]any) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  status,
	}

	requestID := e.RequestID
	if requestID == "" {
		requestID = clip(middleware.GetReqID(ctx), maxCodeLen)
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}

	traceID := e.TraceID
	if traceID == "" {
		traceID = clip(requestctx.TraceID(ctx), maxTraceLen)
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}

	for k, v := range e.Details {
		payload[k] = v
	}
	return status, payload
}

// WriteError writes the structured error as JSON to the provided response writer.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status, payload := err.envelope(ctx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func clip(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
