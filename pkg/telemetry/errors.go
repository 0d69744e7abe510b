package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled is reported when telemetry is turned off.
	ErrDisabled = errors.New("telemetry: disabled")

	// ErrNoURL is returned when the sender has no endpoint.
	ErrNoURL = errors.New("telemetry: URL required")

	// ErrInvalidPayload is returned for payloads that cannot be encoded.
	ErrInvalidPayload = errors.New("telemetry: invalid payload")
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("telemetry: backend returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("telemetry: backend returned %d", e.StatusCode)
}

// IsClientError reports a 4xx response, which usually means a bad payload.
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError reports a 5xx response.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}
