package dialogue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/keshon/troupe/internal/config"
)

// ReplyLimiter enforces per-account reply pacing: active window, minimum
// interval since the last reply, a rolling hourly cap, and the reply
// probability roll.
type ReplyLimiter struct {
	mu      sync.Mutex
	perHour map[string][]time.Time
}

// NewReplyLimiter creates an empty limiter.
func NewReplyLimiter() *ReplyLimiter {
	return &ReplyLimiter{perHour: make(map[string][]time.Time)}
}

// Allow reports whether the account may reply now. The reason names the
// first gate that refused.
func (l *ReplyLimiter) Allow(accountID string, cfg *config.AccountConfig, lastReply, now time.Time) (bool, string) {
	if !cfg.InActiveWindow(now) {
		return false, "outside active window"
	}
	if cfg.MinReplyInterval > 0 && !lastReply.IsZero() && now.Sub(lastReply) < cfg.MinReplyInterval {
		return false, "min reply interval not elapsed"
	}

	l.mu.Lock()
	cutoff := now.Add(-1 * time.Hour)
	var kept []time.Time
	for _, t := range l.perHour[accountID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.perHour[accountID] = kept
	count := len(kept)
	l.mu.Unlock()

	if cfg.HourlyReplyCap > 0 && count >= cfg.HourlyReplyCap {
		return false, "hourly reply cap reached"
	}
	if cfg.ReplyRate < 1 && rand.Float64() >= cfg.ReplyRate {
		return false, "probability roll failed"
	}
	return true, ""
}

// Record registers a sent reply at now. Call after a successful send.
func (l *ReplyLimiter) Record(accountID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perHour[accountID] = append(l.perHour[accountID], now)
}

// Forget drops the account's window (account removal).
func (l *ReplyLimiter) Forget(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.perHour, accountID)
}
