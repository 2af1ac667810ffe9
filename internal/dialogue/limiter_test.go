package dialogue

import (
	"testing"
	"time"

	"github.com/keshon/troupe/internal/config"
)

func alwaysReplyConfig() *config.AccountConfig {
	cfg := config.DefaultAccountConfig("acc1")
	cfg.ReplyRate = 1
	cfg.MinReplyInterval = 0
	cfg.HourlyReplyCap = 0
	return cfg
}

func TestLimiterHourlyCap(t *testing.T) {
	l := NewReplyLimiter()
	cfg := alwaysReplyConfig()
	cfg.HourlyReplyCap = 5
	now := time.Now()

	granted := 0
	for i := 0; i < 20; i++ {
		if ok, _ := l.Allow("acc1", cfg, time.Time{}, now); ok {
			granted++
			l.Record("acc1", now)
		}
	}
	if granted != 5 {
		t.Fatalf("granted %d replies in one hour, cap is 5", granted)
	}

	// entries age out of the rolling window
	later := now.Add(61 * time.Minute)
	if ok, _ := l.Allow("acc1", cfg, time.Time{}, later); !ok {
		t.Fatalf("cap must release after the rolling hour")
	}
}

func TestLimiterMinInterval(t *testing.T) {
	l := NewReplyLimiter()
	cfg := alwaysReplyConfig()
	cfg.MinReplyInterval = time.Minute
	now := time.Now()

	if ok, _ := l.Allow("acc1", cfg, now.Add(-30*time.Second), now); ok {
		t.Fatalf("min interval not enforced")
	}
	ok, reason := l.Allow("acc1", cfg, now.Add(-2*time.Minute), now)
	if !ok {
		t.Fatalf("elapsed interval refused: %s", reason)
	}
	// a conversation that never got a reply is not gated
	if ok, _ := l.Allow("acc1", cfg, time.Time{}, now); !ok {
		t.Fatalf("zero lastReply must pass the interval gate")
	}
}

func TestLimiterActiveWindow(t *testing.T) {
	l := NewReplyLimiter()
	cfg := alwaysReplyConfig()
	now := time.Now()
	// a window that excludes the current hour
	cfg.ActiveFromHour = (now.Hour() + 2) % 24
	cfg.ActiveToHour = (now.Hour() + 3) % 24

	ok, reason := l.Allow("acc1", cfg, time.Time{}, now)
	if ok {
		t.Fatalf("reply allowed outside the active window")
	}
	if reason != "outside active window" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestLimiterZeroReplyRate(t *testing.T) {
	l := NewReplyLimiter()
	cfg := alwaysReplyConfig()
	cfg.ReplyRate = 0
	for i := 0; i < 50; i++ {
		if ok, _ := l.Allow("acc1", cfg, time.Time{}, time.Now()); ok {
			t.Fatalf("reply rate 0 must never allow")
		}
	}
}

func TestLimiterForget(t *testing.T) {
	l := NewReplyLimiter()
	cfg := alwaysReplyConfig()
	cfg.HourlyReplyCap = 1
	now := time.Now()

	l.Record("acc1", now)
	if ok, _ := l.Allow("acc1", cfg, time.Time{}, now); ok {
		t.Fatalf("cap should be reached")
	}
	l.Forget("acc1")
	if ok, _ := l.Allow("acc1", cfg, time.Time{}, now); !ok {
		t.Fatalf("forgotten account still capped")
	}
}
