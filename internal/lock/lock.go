// Package lock provides short-lived mutual-exclusion leases. Leases are not
// reentrant and expire on their own when the holder disappears.
package lock

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/redisx"
	"strings"
	"time"
)

// ErrUnavailable means the lease store could not be reached. It is distinct
// from a lease simply being held by someone else.
var ErrUnavailable = errors.New("lock store unavailable")

// Lease identifies one successful Acquire. Its token is unique per call, so a
// holder whose lease expired and was taken over cannot drop the new one.
type Lease struct {
	Key   string
	Token string
}

type Manager interface {
	// Acquire makes a single non-blocking attempt. It returns false when the
	// key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
	// Release drops the lease if it is still the current holder of its key.
	// Releasing an expired or superseded lease is a no-op.
	Release(ctx context.Context, l Lease) error
}

func BatchKey(batchID int64) string {
	return fmt.Sprintf(redisx.KeyBatchLock, batchID)
}

func DuplicationKey(userID int64, fingerprint string) string {
	return fmt.Sprintf(redisx.KeyDuplicationLock, userID, fingerprint)
}

func namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
