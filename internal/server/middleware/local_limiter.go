package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// LocalLimiter is an in-process domain.RateLimiter for single-node runs
// without Redis. Each key gets a token bucket refilled at limit per window.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	waitRate  rate.Limit
	waitBurst int
}

// NewLocalLimiter creates a LocalLimiter. Wait admits waitLimit requests
// per waitWindow per key.
func NewLocalLimiter(waitLimit int, waitWindow time.Duration) *LocalLimiter {
	if waitLimit <= 0 {
		waitLimit = 10
	}
	if waitWindow <= 0 {
		waitWindow = time.Second
	}
	return &LocalLimiter{
		buckets:   make(map[string]*rate.Limiter),
		waitRate:  rate.Limit(float64(waitLimit) / waitWindow.Seconds()),
		waitBurst: waitLimit,
	}
}

func (l *LocalLimiter) bucket(key string, r rate.Limit, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(r, burst)
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether key may make another request under limit per window.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	r := rate.Limit(float64(limit) / window.Seconds())
	return l.bucket("allow:"+key, r, limit).Allow(), nil
}

// Wait blocks until key is admitted or ctx ends.
func (l *LocalLimiter) Wait(ctx context.Context, key string) error {
	return l.bucket("wait:"+key, l.waitRate, l.waitBurst).Wait(ctx)
}

var _ domain.RateLimiter = (*LocalLimiter)(nil)
