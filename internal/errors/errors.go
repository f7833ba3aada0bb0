package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failure so callers can decide between retrying,
// degrading, or aborting.
type Kind int

const (
	// KindAuth - bad or expired credential. Fatal to a whole batch: no
	// sibling fetch can succeed with the same token.
	KindAuth Kind = iota
	// KindUserNotFound - the tracked username does not resolve upstream.
	KindUserNotFound
	// KindNotFound - a resource other than the user itself is missing.
	KindNotFound
	// KindClient - any other non-retryable 4xx.
	KindClient
	// KindTransport - network-level failure after the retry budget.
	KindTransport
	// KindRateLimited - upstream throttling survived the retry budget.
	KindRateLimited
	// KindCancelled - the caller abandoned the work.
	KindCancelled
	// KindTimeout - a per-user pipeline exceeded its deadline.
	KindTimeout
	// KindConfig - missing or invalid configuration.
	KindConfig
	// KindValidation - invalid input data (roster rows, date windows).
	KindValidation
)

// Error is a structured error carrying its category and optional context.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so errors.Is(err, &Error{Kind: KindAuth}) style
// sentinels work across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// DetailedString renders the error with its context for log output.
func (e *Error) DetailedString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", KindString(e.Kind), e.Message))
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (caused by: %v)", e.Cause))
	}
	for k, v := range e.Context {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}
	return sb.String()
}

// KindString returns the wire/log name of a Kind.
func KindString(k Kind) string {
	switch k {
	case KindAuth:
		return "AUTH"
	case KindUserNotFound:
		return "USER_NOT_FOUND"
	case KindNotFound:
		return "NOT_FOUND"
	case KindClient:
		return "CLIENT"
	case KindTransport:
		return "TRANSPORT"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindCancelled:
		return "CANCELLED"
	case KindTimeout:
		return "TIMEOUT"
	case KindConfig:
		return "CONFIG"
	case KindValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error under a kind. Returns nil for a nil cause.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Convenience constructors for the common kinds.

func AuthError(message string) *Error {
	return New(KindAuth, message)
}

func UserNotFound(username string) *Error {
	return Newf(KindUserNotFound, "user %q not found", username).
		WithContext("username", username)
}

func NotFoundError(message string) *Error {
	return New(KindNotFound, message)
}

func ClientError(message string) *Error {
	return New(KindClient, message)
}

func TransportError(err error, message string) *Error {
	return Wrap(err, KindTransport, message)
}

func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

func ConfigError(message string) *Error {
	return New(KindConfig, message)
}

func ValidationErrorf(format string, args ...interface{}) *Error {
	return Newf(KindValidation, format, args...)
}

// FromContext converts a context error into the matching typed error.
// A pipeline that dies because its own deadline fired is a Timeout; one
// whose parent was cancelled is Cancelled.
func FromContext(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, KindTimeout, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return Wrap(err, KindCancelled, "cancelled")
	default:
		return Wrap(err, KindTransport, "context error")
	}
}

// GetKind extracts the Kind from any error, defaulting to KindTransport
// for untyped failures.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindTransport
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsFatal reports whether an error should abort a whole batch rather
// than fail a single user.
func IsFatal(err error) bool {
	return IsKind(err, KindAuth)
}
