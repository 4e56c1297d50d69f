package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// sweepEvery bounds how many acquisitions pass between expiry sweeps.
const sweepEvery = 256

// LocalLocks is an in-process domain.LockManager for single-node runs
// without Redis. A key stays held until its ttl passes; the returned
// release function frees it early.
type LocalLocks struct {
	mu    sync.Mutex
	held  map[string]time.Time
	now   func() time.Time
	calls int
}

// NewLocalLocks creates a LocalLocks. A nil now uses time.Now.
func NewLocalLocks(now func() time.Time) *LocalLocks {
	if now == nil {
		now = time.Now
	}
	return &LocalLocks{held: make(map[string]time.Time), now: now}
}

// Acquire holds key for ttl, or fails with domain.ErrLockHeld while another
// holder's ttl has not passed.
func (l *LocalLocks) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		for k, until := range l.held {
			if !now.Before(until) {
				delete(l.held, k)
			}
		}
	}
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, domain.ErrLockHeld
	}
	until := now.Add(ttl)
	l.held[key] = until

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
	}, nil
}

// Len returns the number of keys currently tracked, expired or not.
func (l *LocalLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

var _ domain.LockManager = (*LocalLocks)(nil)
