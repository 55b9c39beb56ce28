package roundtable

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies adapter failures. Retry and breaker middleware key
// their decisions off the kind rather than error string matching.
type ErrorKind string

const (
	KindNotAvailable ErrorKind = "not_available"
	KindConnection   ErrorKind = "connection"
	KindTimeout      ErrorKind = "timeout"
	KindRateLimit    ErrorKind = "rate_limit"
	KindAuth         ErrorKind = "authentication"
	KindCircuitOpen  ErrorKind = "circuit_open"
	KindValidation   ErrorKind = "validation"
	KindInternal     ErrorKind = "internal"
)

// ErrNotFound is returned by History implementations when no session
// matches the requested ID.
var ErrNotFound = errors.New("roundtable: not found")

// ErrAdapter is a failure from an assistant backend.
type ErrAdapter struct {
	Name    string // adapter name ("claude", "glm", ...)
	Kind    ErrorKind
	Message string
	Err     error // underlying cause, may be nil
}

func (e *ErrAdapter) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Name, e.Kind, e.Message)
}

func (e *ErrAdapter) Unwrap() error { return e.Err }

// ErrHTTP is a non-200 response from an HTTP-backed adapter.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed from Retry-After when present
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrBreakerOpen is returned when an adapter's circuit breaker rejects a
// call without attempting it.
type ErrBreakerOpen struct {
	Name string
}

func (e *ErrBreakerOpen) Error() string {
	return fmt.Sprintf("%s: circuit breaker open", e.Name)
}

// ErrValidation reports invalid input to an operation.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// KindOf extracts the ErrorKind from err, mapping HTTP statuses and breaker
// rejections to their kinds. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	var ea *ErrAdapter
	if errors.As(err, &ea) {
		return ea.Kind
	}
	var eh *ErrHTTP
	if errors.As(err, &eh) {
		switch {
		case eh.Status == 429:
			return KindRateLimit
		case eh.Status == 401 || eh.Status == 403:
			return KindAuth
		case eh.Status == 503:
			return KindConnection
		}
		return KindInternal
	}
	var eb *ErrBreakerOpen
	if errors.As(err, &eb) {
		return KindCircuitOpen
	}
	var ev *ErrValidation
	if errors.As(err, &ev) {
		return KindValidation
	}
	return KindInternal
}

// retryableKind reports whether an error of this kind is worth retrying.
func retryableKind(k ErrorKind) bool {
	return k == KindTimeout || k == KindConnection || k == KindRateLimit
}

// FormatUserError maps an error to a short user-facing message. Raw error
// text from backends is often noise; common failure modes get friendly
// phrasing instead.
func FormatUserError(err error, name string) string {
	if err == nil {
		return ""
	}
	suffix := ""
	if name != "" {
		suffix = " (" + name + ")"
	}
	switch KindOf(err) {
	case KindConnection:
		return "Connection failed" + suffix + ". Check your network connection."
	case KindTimeout:
		return "Request timed out" + suffix + ". The service may be slow or unavailable."
	case KindRateLimit:
		return "Rate limited" + suffix + ". Please wait before trying again."
	case KindAuth:
		return "Authentication failed" + suffix + ". Check your API key or credentials."
	case KindNotAvailable:
		return "Assistant not available" + suffix + ". Check that it is installed and running."
	case KindCircuitOpen:
		return "Temporarily unavailable" + suffix + ". Too many recent failures."
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connect"):
		return "Connection failed" + suffix + ". Check your network connection."
	case strings.Contains(msg, "timeout"):
		return "Request timed out" + suffix + ". The service may be slow or unavailable."
	case strings.Contains(msg, "not found"):
		return "Resource not found" + suffix + ". Check that the service is properly installed."
	}
	if name != "" {
		return fmt.Sprintf("[%s] %v", name, err)
	}
	return err.Error()
}
