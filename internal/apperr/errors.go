// Package apperr classifies failures from configuration and external services
// so callers can tell retryable conditions from fatal ones.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure categories.
var (
	// ErrConfig indicates missing or invalid configuration.
	ErrConfig = errors.New("configuration error")

	// ErrTransient indicates a network or provider-side failure that may succeed on retry.
	ErrTransient = errors.New("transient service error")

	// ErrRejected indicates the provider refused the request (bad input, auth, quota).
	ErrRejected = errors.New("request rejected by provider")

	// ErrPrecondition indicates an operation was attempted before its prerequisites held.
	ErrPrecondition = errors.New("precondition failed")
)

// Kind is the category of a classified error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransient
	KindRejected
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Error attaches a category to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the category sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrPrecondition:
		return e.Kind == KindPrecondition
	}
	return false
}

func Config(op string, err error) error       { return &Error{Kind: KindConfig, Op: op, Err: err} }
func Transient(op string, err error) error    { return &Error{Kind: KindTransient, Op: op, Err: err} }
func Rejected(op string, err error) error     { return &Error{Kind: KindRejected, Op: op, Err: err} }
func Precondition(op string, err error) error { return &Error{Kind: KindPrecondition, Op: op, Err: err} }

// Classify returns the category of err. Unclassified network errors and
// deadline expiry count as transient.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}

// FromStatus maps an HTTP status code returned by a provider to a category.
// 429 and 5xx are transient, other 4xx are rejections. A zero status means
// no response was received, which is also transient.
func FromStatus(op string, status int, err error) error {
	if status >= 400 && status < 500 && status != 429 {
		return Rejected(op, err)
	}
	return Transient(op, err)
}
