package tangguh

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds carried by RequestError. Callers branch on these rather than
// parsing messages.
const (
	// KindNetwork: the transport could not complete the exchange at all.
	KindNetwork = "Network"
	// KindTimeout: the per-attempt deadline elapsed before completion.
	KindTimeout = "Timeout"
	// KindCancelled: the caller cancelled the request context.
	KindCancelled = "Cancelled"
	// KindStatus: the server answered with a non-success status code.
	KindStatus = "Status"
	// KindAuth: terminal authorization failure, after a token refresh failed
	// or could not be attempted. Raw 401s are never surfaced.
	KindAuth = "Authorization"
	// KindDecode: the response body could not be parsed into the expected
	// shape. Never retried.
	KindDecode = "Decode"
	// KindCircuitOpen: the circuit breaker rejected the dispatch.
	KindCircuitOpen = "CircuitOpen"
	// KindRateLimit: the local rate limiter rejected the dispatch.
	KindRateLimit = "RateLimit"
	// KindValidation: the client configuration failed validation.
	KindValidation = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("tangguh: circuit open")

	// ErrRateLimited is returned when a request is denied by the rate limiter.
	ErrRateLimited = errors.New("tangguh: rate limited")

	// ErrNotAuthenticated is returned by the token manager when no session
	// exists and no credentials can be attached.
	ErrNotAuthenticated = errors.New("tangguh: not authenticated")
)

// RequestError is the structured error returned by Execute. Kind is always
// set; StatusCode is set for KindStatus and for KindAuth triggered by a 401.
type RequestError struct {
	Kind       string
	Message    string
	Cause      error
	StatusCode int
	RequestID  string
	Method     string
	URL        string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches on Kind, and on StatusCode when the target specifies one.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*RequestError)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.StatusCode == 0 || e.StatusCode == t.StatusCode
}

// ErrorKind extracts the kind from err, or "" if err is not a RequestError.
func ErrorKind(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// StatusCode extracts the HTTP status code from err. ok is false when err
// carries no status.
func StatusCode(err error) (code int, ok bool) {
	var re *RequestError
	if errors.As(err, &re) && re.StatusCode > 0 {
		return re.StatusCode, true
	}
	return 0, false
}

// IsTimeout reports whether err is a deadline failure.
func IsTimeout(err error) bool { return ErrorKind(err) == KindTimeout }

// IsCancelled reports whether err is a caller cancellation.
func IsCancelled(err error) bool { return ErrorKind(err) == KindCancelled }

// IsAuthorization reports whether err is a terminal authorization failure.
func IsAuthorization(err error) bool { return ErrorKind(err) == KindAuth }

// IsTransient determines if an error represents a transient failure that
// might succeed on retry: network failures and 5xx responses (plus 429).
// Timeouts and cancellations are deliberately not transient; a caller that
// wants a retried timeout re-invokes Execute itself.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var re *RequestError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Kind {
	case KindNetwork, KindCircuitOpen, KindRateLimit:
		return true
	case KindStatus:
		return re.StatusCode == 429 || re.StatusCode >= 500
	default:
		return false
	}
}
