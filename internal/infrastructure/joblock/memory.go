package joblock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type held struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is a Locker for a single process
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]held
	now   func() time.Time
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an in-process Locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]held), now: time.Now}
}

// Acquire takes the lock unless an unexpired lease exists
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if h, ok := l.locks[key]; ok && now.Before(h.expiresAt) {
		return Lease{}, ErrLocked
	}
	token := uuid.NewString()
	l.locks[key] = held{token: token, expiresAt: now.Add(ttl)}
	return Lease{Key: key, Token: token}, nil
}

// Release drops the lease if it is still the current holder
func (l *MemoryLocker) Release(_ context.Context, lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.locks[lease.Key]; ok && h.token == lease.Token {
		delete(l.locks, lease.Key)
	}
	return nil
}

// Close implements Locker
func (l *MemoryLocker) Close() error {
	return nil
}
