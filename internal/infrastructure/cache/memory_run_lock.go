package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryRunLock implements scheduler.RunLocker with a map.
// This is suitable for single-instance deployments and testing.
type MemoryRunLock struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

// NewMemoryRunLock creates a new in-memory run lock
func NewMemoryRunLock() *MemoryRunLock {
	return &MemoryRunLock{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

func (l *MemoryRunLock) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.locks[key]; ok && now.Before(e.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryRunLock) Extend(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.locks[key]
	if !ok || e.token != token || !now.Before(e.expiresAt) {
		return false, nil
	}
	e.expiresAt = now.Add(ttl)
	l.locks[key] = e
	return true, nil
}

func (l *MemoryRunLock) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.locks[key]; ok && e.token == token {
		delete(l.locks, key)
	}
	return nil
}

// Close is a no-op; it lets MemoryRunLock stand in for RedisRunLock.
func (l *MemoryRunLock) Close() error {
	return nil
}
