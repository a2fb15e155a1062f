package app

import (
	"sync"
	"time"

	"github.com/dkeye/voicemesh/internal/domain"
)

// RateLimiter is a per-connection sliding window. A zero limit disables it.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.PeerID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.PeerID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.limit > 0 && rl.interval > 0
}

// Allow records an attempt and reports whether it fits in the window.
// The second return is true only for the first rejection in a window.
func (rl *RateLimiter) Allow(id domain.PeerID) (ok bool, firstReject bool) {
	if !rl.Enabled() {
		return true, false
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = append(fresh, now)
		return false, len(fresh) == rl.limit
	}
	rl.history[id] = append(fresh, now)
	return true, false
}

func (rl *RateLimiter) Forget(id domain.PeerID) {
	if !rl.Enabled() {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
