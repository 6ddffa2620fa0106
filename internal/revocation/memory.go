package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is a process-local registry for single-instance deployments
// and tests. Expired entries are invisible immediately and removed by Sweep.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (r *MemoryRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if !expiresAt.After(r.now()) {
		return nil
	}
	key := HashToken(token)

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[key]; !ok || expiresAt.After(current) {
		r.entries[key] = expiresAt
	}
	return nil
}

func (r *MemoryRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	key := HashToken(token)

	r.mu.RLock()
	expiresAt, ok := r.entries[key]
	r.mu.RUnlock()

	return ok && r.now().Before(expiresAt), nil
}

func (r *MemoryRegistry) Sweep(ctx context.Context) (int64, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for key, expiresAt := range r.entries {
		if !now.Before(expiresAt) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
