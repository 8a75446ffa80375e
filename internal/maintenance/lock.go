package maintenance

import (
	"context"
	"sync"
)

// Lock keeps maintenance cycles from overlapping.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// MutexLock is an in-process lock. The store is a single-process local
// database, so exclusion within the process is all that is needed; the
// SQLite busy timeout covers any other writer.
type MutexLock struct {
	mu sync.Mutex
}

// NewMutexLock builds an in-process lock.
func NewMutexLock() *MutexLock {
	return &MutexLock{}
}

// Acquire takes the lock without blocking, reporting whether it was won.
func (l *MutexLock) Acquire(ctx context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

// Release frees the lock.
func (l *MutexLock) Release(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}
