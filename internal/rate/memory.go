package rate

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	xrate "golang.org/x/time/rate"
)

// MemoryLimiter mantiene un token bucket por key (golang.org/x/time/rate)
// equivalente a Max requests por Window, con ráfaga Max. Los buckets
// inactivos expiran del go-cache después de dos ventanas.
type MemoryLimiter struct {
	Max    int
	Window time.Duration
	Now    func() time.Time

	mu      sync.Mutex
	buckets *gocache.Cache
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		Max:     max,
		Window:  window,
		Now:     time.Now,
		buckets: gocache.New(2*window, window),
	}
}

func (l *MemoryLimiter) bucket(key string) *xrate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		b := v.(*xrate.Limiter)
		l.buckets.SetDefault(key, b)
		return b
	}
	every := xrate.Every(l.Window / time.Duration(l.Max))
	b := xrate.NewLimiter(every, l.Max)
	l.buckets.SetDefault(key, b)
	return b
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if l.Max <= 0 {
		return Noop{}.Allow(ctx, key)
	}
	now := l.Now()
	b := l.bucket(key)
	r := b.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return Result{
			Allowed:     false,
			Remaining:   0,
			RetryAfter:  delay,
			WindowTTL:   l.Window,
			CurrentHits: int64(l.Max) + 1,
		}, nil
	}
	left := int64(b.TokensAt(now))
	if left < 0 {
		left = 0
	}
	return Result{
		Allowed:     true,
		Remaining:   left,
		WindowTTL:   l.Window,
		CurrentHits: int64(l.Max) - left,
	}, nil
}
