// Package ratelimit provides the process-wide throttle for outbound calls to
// the geocoding service.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between grants required by the
// public Nominatim usage policy.
const DefaultInterval = 1000 * time.Millisecond

// Limiter grants at most one permit per interval across all callers.
// Construct one per process and share it.
type Limiter struct {
	interval time.Duration

	mu   sync.Mutex
	pace *rate.Limiter
	last time.Time

	lastUnix atomic.Int64
	grants   atomic.Int64

	sleep func(time.Duration)
}

// New returns a Limiter with the given minimum interval. A non-positive
// interval falls back to DefaultInterval.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Limiter{
		interval: interval,
		pace:     rate.NewLimiter(rate.Every(interval), 1),
		sleep:    time.Sleep,
	}
}

// Interval returns the configured minimum spacing between grants.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Acquire blocks until at least one interval has passed since the previous
// grant, records the new grant and returns its time. Callers queue on the
// limiter's lock, so no two callers can be granted within one interval.
// Acquire cannot be cancelled: a caller that stops waiting still spends its
// slot once granted.
func (l *Limiter) Acquire() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	if d := l.pace.Reserve().Delay(); d > 0 {
		l.sleep(d)
	}
	if !l.last.IsZero() {
		if rem := l.interval - time.Since(l.last); rem > 0 {
			l.sleep(rem)
		}
	}

	now := time.Now()
	l.last = now
	l.lastUnix.Store(now.UnixNano())
	n := l.grants.Add(1)

	if waited := now.Sub(start); waited > time.Millisecond {
		zap.L().Debug("ratelimit: waited for permit",
			zap.Duration("waited", waited),
			zap.Int64("grant", n),
		)
	}
	return now
}

// LastGranted returns the time of the most recent grant, or the zero time
// if none has been granted.
func (l *Limiter) LastGranted() time.Time {
	ns := l.lastUnix.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Grants returns the number of permits granted so far.
func (l *Limiter) Grants() int64 { return l.grants.Load() }
