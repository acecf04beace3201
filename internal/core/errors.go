package core

import (
	"errors"
	"fmt"
	"time"
)

// QuotaExceededError signals that the upstream rejected a request for rate
// limiting. It is recoverable and retried with exponential backoff inside
// the fetch pipeline; it never surfaces past the game data client.
type QuotaExceededError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: quota exceeded, retry after %s", e.Endpoint, e.RetryAfter)
	}
	return fmt.Sprintf("%s: quota exceeded", e.Endpoint)
}

// TransientFetchError covers network failures, unexpected statuses, and
// malformed or incomplete response bodies.
type TransientFetchError struct {
	Endpoint string
	Cause    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Cause)
}

func (e *TransientFetchError) Unwrap() error { return e.Cause }

// IsQuotaExceeded reports whether err is (or wraps) a quota rejection.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// Command rejections. These map to user-facing acknowledgements; no state
// is mutated when they are returned.
var (
	ErrInvalidCommandArgument = errors.New("invalid command argument")
	ErrConflictingSession     = errors.New("another target is already being tracked")
)

// Delivery failure sentinels for Notifier implementations to wrap.
var (
	ErrPermissionDenied  = errors.New("notification delivery forbidden")
	ErrDeliveryTransient = errors.New("notification delivery failed transiently")
)

// DeliveryClass classifies a notification delivery failure.
type DeliveryClass int

const (
	DeliveryUnknown DeliveryClass = iota
	DeliveryPermissionDenied
	DeliveryTransient
)

// ClassifyDelivery maps a Notifier error onto the delivery taxonomy.
// Permission loss is terminal for the current session; everything else is
// logged and tracking continues.
func ClassifyDelivery(err error) DeliveryClass {
	switch {
	case err == nil:
		return DeliveryUnknown
	case errors.Is(err, ErrPermissionDenied):
		return DeliveryPermissionDenied
	case errors.Is(err, ErrDeliveryTransient):
		return DeliveryTransient
	default:
		return DeliveryUnknown
	}
}
