// Package joblock keeps two processes from running migration jobs at the same time.
package joblock

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned by Acquire while another holder owns the lock
var ErrLocked = errors.New("job lock is held by another process")

// Lease is a held lock. Token identifies the holder on release.
type Lease struct {
	Key   string
	Token string
}

// Locker grants exclusive, expiring leases on a key
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
	Release(ctx context.Context, lease Lease) error
	Close() error
}
