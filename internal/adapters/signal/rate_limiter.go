package signal

import (
	"sync"
	"time"

	"github.com/dkeye/watchparty/internal/domain"
	"github.com/samber/lo"
)

// ChatLimiter caps CHAT messages per user over a sliding interval.
// Users with no message inside the interval are swept out.
type ChatLimiter struct {
	mu        sync.Mutex
	sent      map[domain.UserID][]time.Time
	limit     int
	interval  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewChatLimiter(limit int, interval time.Duration) *ChatLimiter {
	return &ChatLimiter{
		sent:     make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records a message for uid unless the user already hit the limit.
func (cl *ChatLimiter) Allow(uid domain.UserID) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	cutoff := now.Add(-cl.interval)
	if now.Sub(cl.lastSweep) >= cl.interval {
		cl.sweep(cutoff)
		cl.lastSweep = now
	}

	recent := lo.Filter(cl.sent[uid], func(t time.Time, _ int) bool { return t.After(cutoff) })
	if len(recent) >= cl.limit {
		cl.sent[uid] = recent
		return false
	}
	cl.sent[uid] = append(recent, now)
	return true
}

// sweep must be called with cl.mu held.
func (cl *ChatLimiter) sweep(cutoff time.Time) {
	for uid, times := range cl.sent {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(cl.sent, uid)
		}
	}
}

// Tracked reports how many users currently hold a window.
func (cl *ChatLimiter) Tracked() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.sent)
}
