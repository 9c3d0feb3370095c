package signal

import (
	"sync"

	"github.com/dkeye/SignMeet/internal/core"
	"golang.org/x/time/rate"
)

// RoomRateLimiter throttles chat and relay frames per connection.
type RoomRateLimiter struct {
	mu       sync.Mutex
	limiters map[core.SessionID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewRoomRateLimiter(perSecond float64, burst int) *RoomRateLimiter {
	return &RoomRateLimiter{
		limiters: make(map[core.SessionID]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *RoomRateLimiter) Allow(sid core.SessionID) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[sid]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[sid] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

func (rl *RoomRateLimiter) Forget(sid core.SessionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, sid)
}
