package lock

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"sync"
	"time"
)

type memLease struct {
	token   string
	expires time.Time
}

// Memory is an in-process Manager for tests and single-node runs.
type Memory struct {
	Now func() time.Time

	mu     sync.Mutex
	leases map[string]memLease
	down   bool
}

func NewMemory() *Memory {
	return &Memory{Now: time.Now, leases: map[string]memLease{}}
}

// SetUnavailable makes every call fail with ErrUnavailable until reset.
func (m *Memory) SetUnavailable(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return Lease{}, false, fmt.Errorf("%w: acquire %s", ErrUnavailable, key)
	}
	now := m.Now()
	if cur, ok := m.leases[key]; ok && now.Before(cur.expires) {
		return Lease{}, false, nil
	}
	l := Lease{Key: key, Token: uuid.NewString()}
	m.leases[key] = memLease{token: l.Token, expires: now.Add(ttl)}
	return l, true, nil
}

func (m *Memory) Release(_ context.Context, l Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return fmt.Errorf("%w: release %s", ErrUnavailable, l.Key)
	}
	if cur, ok := m.leases[l.Key]; ok && cur.token == l.Token {
		delete(m.leases, l.Key)
	}
	return nil
}

// Held reports whether key is currently leased.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.leases[key]
	return ok && m.Now().Before(cur.expires)
}
