package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is matched by every 401 APIError.
var ErrUnauthenticated = errors.New("unauthenticated")

// APIError is a response outside the 2xx range.
type APIError struct {
	Status int
	Data   json.RawMessage
	URL    string
}

func (e *APIError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s: status %d: %s", e.URL, e.Status, msg)
	}
	return fmt.Sprintf("%s: status %d", e.URL, e.Status)
}

// Unwrap lets errors.Is(err, ErrUnauthenticated) match 401 responses.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthenticated
	}
	return nil
}

// Message returns the backend's human readable message, if any. Text bodies
// are returned as-is.
func (e *APIError) Message() string {
	if len(e.Data) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(e.Data, &plain); err == nil {
		return plain
	}
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(e.Data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	var text string
	if err := json.Unmarshal(body.Error, &text); err == nil {
		return text
	}
	return ""
}

// FieldErrors returns the per-field messages of a validation response. Each
// field may carry a single string or a list of strings.
func (e *APIError) FieldErrors() map[string][]string {
	var body struct {
		Errors map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(e.Data, &body); err != nil || len(body.Errors) == 0 {
		return nil
	}
	fields := make(map[string][]string, len(body.Errors))
	for field, raw := range body.Errors {
		var one string
		if err := json.Unmarshal(raw, &one); err == nil {
			fields[field] = []string{one}
			continue
		}
		var many []string
		if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
			fields[field] = many
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Decode unmarshals the error body into v.
func (e *APIError) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// NetworkError means no response was received.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AbortError means the caller cancelled the request. It is not a failure.
type AbortError struct {
	URL string
	Err error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("request to %s aborted: %v", e.URL, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// IsAbort reports whether err is a caller cancellation.
func IsAbort(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort)
}

// IsNetwork reports whether err means no response was received.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
