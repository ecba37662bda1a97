package types

import "fmt"

// AuthError is returned when the monitoring backend rejects a login. The
// session must log in again before any further upstream call.
type AuthError struct {
	Account string
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("login failed for %s", e.Account)
	if e.Code != "" {
		msg += fmt.Sprintf(" (code %s)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UpstreamError is returned for a non-success status or an unparseable body
// from the monitoring or actuator backend.
type UpstreamError struct {
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s failed", e.Endpoint)
	if e.Status != 0 {
		msg += fmt.Sprintf(" with status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ValidationError is returned for malformed input before any upstream call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
