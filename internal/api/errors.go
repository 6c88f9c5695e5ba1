package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
)

// ErrIncompleteResult means the service answered 2xx without a job id or result text.
var ErrIncompleteResult = errors.New("conversion response is missing job_id or tex_content")

// maxErrorBody bounds how much of an error body is read.
const maxErrorBody = 64 * 1024

// ServiceError is a non-success response from the conversion service.
// Message is the server-supplied text and may be empty when the body
// carried none; callers substitute a generic message in that case.
type ServiceError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("service returned status %d", e.Status)
}

// StatusCode lets the retry classifier see the HTTP status.
func (e *ServiceError) StatusCode() int {
	return e.Status
}

// TransportError wraps failures below HTTP: DNS, refused connections, resets,
// cancelled contexts.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsServiceError reports whether err is a structured rejection from the service.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// ServiceMessage returns the server-supplied message carried by err, if any.
func ServiceMessage(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

// IsTransportError reports whether err happened below the HTTP layer.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTimeout reports whether err was caused by a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// newServiceError reads an error response. The message is taken from the
// first of the JSON fields error, detail, message that holds a string.
func newServiceError(resp *nethttp.Response) *ServiceError {
	se := &ServiceError{
		Status:    resp.StatusCode,
		RequestID: resp.Request.Header.Get("X-Request-ID"),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return se
	}
	se.Message = extractErrorMessage(body)
	return se
}

func extractErrorMessage(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		// FastAPI validation errors: {"detail": [{"msg": "..."}]}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 && items[0].Msg != "" {
			return items[0].Msg
		}
	}
	return ""
}
