package gateway

import "fmt"

// ConfigurationError means the upstream credential is missing. No network
// call was made.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s is not set", e.Missing)
}

// ValidationError means the client request was malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// UpstreamError is a non-success response from the completion service.
// Body holds the raw response body for diagnostics.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InternalError wraps any other failure during a round trip.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
