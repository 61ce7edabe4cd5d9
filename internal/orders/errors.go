package orders

import (
	"errors"
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/ariefcatur/go-batch-reservations/internal/lock"
)

var (
	ErrValidation        = inventory.ErrInvalid
	ErrNotFound          = inventory.ErrNotFound
	ErrInsufficientStock = inventory.ErrInsufficientStock

	// ErrUnavailable covers deleted products and activities outside their window.
	ErrUnavailable = errors.New("no longer available")
	// ErrDuplicate means an identical checkout is already in flight; poll
	// instead of retrying.
	ErrDuplicate = errors.New("order is already being processed")
	// ErrContention means a batch lease was held by another checkout. Retryable.
	ErrContention = errors.New("stock contention, retry later")
	// ErrDeadlineExpired is returned when payment arrives after the deadline.
	ErrDeadlineExpired   = errors.New("payment deadline expired")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// outcome labels a checkout result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnavailable):
		return "validation"
	case errors.Is(err, lock.ErrUnavailable):
		return "lock_unavailable"
	default:
		return "error"
	}
}
