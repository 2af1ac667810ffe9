// Package telemetry accumulates in-memory metrics for the account fleet,
// evaluates alert rules against them, and feeds push-style subscribers.
// It has no dependency on the rest of the pipeline.
package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/keshon/troupe/pkg/util"
)

// EventKind tags one entry in the bounded event log.
type EventKind string

const (
	KindMessage      EventKind = "message"
	KindReply        EventKind = "reply"
	KindGiveaway     EventKind = "giveaway"
	KindError        EventKind = "error"
	KindProcessError EventKind = "process_error"
)

// Event is one telemetry sample. The event log backs both aggregate
// metrics sanity checks and time-bucketed history queries.
type Event struct {
	At        time.Time
	AccountID string
	Kind      EventKind
	Success   bool
	LatencyMs int64
	Amount    float64
}

// AccountMetrics is a snapshot of one account's counters.
type AccountMetrics struct {
	AccountID         string
	Messages          int64
	Replies           int64
	ReplyFailures     int64
	Giveaways         int64
	GiveawayWins      int64
	Errors            int64
	ProcessErrors     int64
	AvgReplyLatencyMs float64
	LastActivity      time.Time
}

// SystemMetrics aggregates the whole fleet.
type SystemMetrics struct {
	Accounts          int
	OnlineAccounts    int
	Messages          int64
	Replies           int64
	ReplyFailures     int64
	Giveaways         int64
	GiveawayFailures  int64
	Errors            int64
	ProcessErrors     int64
	ErrorRate         float64 // errors / messages
	GiveawayFailRate  float64
	OfflineFraction   float64
	AvgReplyLatencyMs float64
}

type accountCounters struct {
	mu            sync.Mutex
	messages      int64
	replies       int64
	replyFailures int64
	giveaways     int64
	giveawayWins  int64
	errors        int64
	processErrors int64
	latencySumMs  int64
	latencyCount  int64
	lastActivity  time.Time
}

// StatusFunc reports (online, total) account counts; wired in by the
// lifecycle manager so telemetry stays independent of it.
type StatusFunc func() (online, total int)

// Service is the telemetry hub. All methods are safe for concurrent use;
// counters are incremented under per-account exclusion.
type Service struct {
	mu        sync.RWMutex
	accounts  map[string]*accountCounters
	events    []Event
	retention int
	statusFn  StatusFunc

	alerts     []Alert
	thresholds Thresholds

	feed *feed
}

// NewService creates a telemetry service retaining up to retention events.
func NewService(thresholds Thresholds, retention int) *Service {
	if retention <= 0 {
		retention = 10000
	}
	return &Service{
		accounts:   make(map[string]*accountCounters),
		retention:  retention,
		thresholds: thresholds,
		feed:       newFeed(),
	}
}

// SetStatusFunc wires the account online/total source.
func (s *Service) SetStatusFunc(fn StatusFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFn = fn
}

func (s *Service) counters(accountID string) *accountCounters {
	s.mu.RLock()
	ac := s.accounts[accountID]
	s.mu.RUnlock()
	if ac != nil {
		return ac
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ac = s.accounts[accountID]; ac == nil {
		ac = &accountCounters{}
		s.accounts[accountID] = ac
	}
	return ac
}

func (s *Service) logEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	// prune oldest half once past retention so pruning stays amortized
	if len(s.events) > s.retention {
		keep := s.retention / 2
		s.events = append(s.events[:0:0], s.events[len(s.events)-keep:]...)
	}
	s.mu.Unlock()
	s.feed.publish(Update{Kind: UpdateEvent, Event: &ev})
}

// RecordMessage counts one inbound message for the account.
func (s *Service) RecordMessage(accountID string) {
	now := time.Now()
	ac := s.counters(accountID)
	ac.mu.Lock()
	ac.messages++
	ac.lastActivity = now
	ac.mu.Unlock()
	s.logEvent(Event{At: now, AccountID: accountID, Kind: KindMessage, Success: true})
}

// RecordReply counts one reply attempt and its latency.
func (s *Service) RecordReply(accountID string, success bool, latency time.Duration) {
	now := time.Now()
	ac := s.counters(accountID)
	ac.mu.Lock()
	if success {
		ac.replies++
		ac.latencySumMs += latency.Milliseconds()
		ac.latencyCount++
	} else {
		ac.replyFailures++
		ac.errors++
	}
	ac.lastActivity = now
	ac.mu.Unlock()
	s.logEvent(Event{At: now, AccountID: accountID, Kind: KindReply, Success: success, LatencyMs: latency.Milliseconds()})
}

// RecordGiveaway counts one terminal giveaway outcome.
func (s *Service) RecordGiveaway(accountID string, success bool, amount float64) {
	now := time.Now()
	ac := s.counters(accountID)
	ac.mu.Lock()
	ac.giveaways++
	if success {
		ac.giveawayWins++
	}
	ac.lastActivity = now
	ac.mu.Unlock()
	s.logEvent(Event{At: now, AccountID: accountID, Kind: KindGiveaway, Success: success, Amount: amount})
}

// RecordError counts one per-event processing error.
func (s *Service) RecordError(accountID string) {
	now := time.Now()
	ac := s.counters(accountID)
	ac.mu.Lock()
	ac.errors++
	ac.processErrors++
	ac.mu.Unlock()
	s.logEvent(Event{At: now, AccountID: accountID, Kind: KindProcessError, Success: false})
}

// GetAccountMetrics returns a snapshot for one account, or nil when the
// account has produced no telemetry yet.
func (s *Service) GetAccountMetrics(accountID string) *AccountMetrics {
	s.mu.RLock()
	ac := s.accounts[accountID]
	s.mu.RUnlock()
	if ac == nil {
		return nil
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	m := &AccountMetrics{
		AccountID:     accountID,
		Messages:      ac.messages,
		Replies:       ac.replies,
		ReplyFailures: ac.replyFailures,
		Giveaways:     ac.giveaways,
		GiveawayWins:  ac.giveawayWins,
		Errors:        ac.errors,
		ProcessErrors: ac.processErrors,
		LastActivity:  ac.lastActivity,
	}
	if ac.latencyCount > 0 {
		m.AvgReplyLatencyMs = float64(ac.latencySumMs) / float64(ac.latencyCount)
	}
	return m
}

// GetAccountMetricsRange recomputes one account's counters from the event
// log over [since, until).
func (s *Service) GetAccountMetricsRange(accountID string, since, until time.Time) *AccountMetrics {
	s.mu.RLock()
	events := append([]Event(nil), s.events...)
	s.mu.RUnlock()

	m := &AccountMetrics{AccountID: accountID}
	var latSum, latCount int64
	for _, ev := range events {
		if ev.AccountID != accountID || ev.At.Before(since) || !ev.At.Before(until) {
			continue
		}
		switch ev.Kind {
		case KindMessage:
			m.Messages++
		case KindReply:
			if ev.Success {
				m.Replies++
				latSum += ev.LatencyMs
				latCount++
			} else {
				m.ReplyFailures++
				m.Errors++
			}
		case KindGiveaway:
			m.Giveaways++
			if ev.Success {
				m.GiveawayWins++
			}
		case KindProcessError:
			m.Errors++
			m.ProcessErrors++
		}
		if ev.At.After(m.LastActivity) {
			m.LastActivity = ev.At
		}
	}
	if latCount > 0 {
		m.AvgReplyLatencyMs = float64(latSum) / float64(latCount)
	}
	return m
}

// GetSystemMetrics aggregates all accounts into one snapshot.
func (s *Service) GetSystemMetrics() SystemMetrics {
	s.mu.RLock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	statusFn := s.statusFn
	s.mu.RUnlock()

	var out SystemMetrics
	var latSum, latCount int64
	for _, id := range ids {
		m := s.GetAccountMetrics(id)
		if m == nil {
			continue
		}
		out.Messages += m.Messages
		out.Replies += m.Replies
		out.ReplyFailures += m.ReplyFailures
		out.Giveaways += m.Giveaways
		out.GiveawayFailures += m.Giveaways - m.GiveawayWins
		out.Errors += m.Errors
		out.ProcessErrors += m.ProcessErrors
		if m.Replies > 0 {
			latSum += int64(m.AvgReplyLatencyMs * float64(m.Replies))
			latCount += m.Replies
		}
	}
	out.Accounts = len(ids)
	if statusFn != nil {
		online, total := statusFn()
		out.OnlineAccounts = online
		if total > 0 {
			out.Accounts = total
			out.OfflineFraction = float64(total-online) / float64(total)
		}
	}
	if out.Messages > 0 {
		out.ErrorRate = float64(out.Errors) / float64(out.Messages)
	}
	if out.Giveaways > 0 {
		out.GiveawayFailRate = float64(out.GiveawayFailures) / float64(out.Giveaways)
	}
	if latCount > 0 {
		out.AvgReplyLatencyMs = float64(latSum) / float64(latCount)
	}
	return out
}

// Bucket is one slot of a time-bucketed history query.
type Bucket struct {
	Start time.Time
	Count int64
}

// bucketWidth returns the fixed bucket width for a query period.
func bucketWidth(period string) (time.Duration, time.Duration, bool) {
	switch period {
	case "1h":
		return time.Hour, 5 * time.Minute, true
	case "24h":
		return 24 * time.Hour, time.Hour, true
	case "7d":
		return 7 * 24 * time.Hour, 6 * time.Hour, true
	case "30d":
		return 30 * 24 * time.Hour, 24 * time.Hour, true
	}
	return 0, 0, false
}

// History returns bucketed counts of one event kind over a period
// ("1h", "24h", "7d", "30d"). Unknown periods return nil.
func (s *Service) History(kind EventKind, period string) []Bucket {
	span, width, ok := bucketWidth(period)
	if !ok {
		return nil
	}
	now := time.Now()
	start := now.Add(-span).Truncate(width)
	n := int(span/width) + 1

	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Start = start.Add(time.Duration(i) * width)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.Kind != kind || ev.At.Before(start) {
			continue
		}
		idx := int(ev.At.Sub(start) / width)
		if idx >= 0 && idx < n {
			buckets[idx].Count++
		}
	}
	return buckets
}

// StartSummaryLoop logs a periodic system snapshot until ctx is done.
func (s *Service) StartSummaryLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetSystemMetrics()
			log.Printf("[TELEMETRY] %s accounts=%d online=%d messages=%d replies=%d errors=%d err_rate=%.3f",
				util.FormatDateTpl(time.Now().UnixMilli(), "YYYY-MM-DD hh:mm:ss"),
				m.Accounts, m.OnlineAccounts, m.Messages, m.Replies, m.Errors, m.ErrorRate)
		}
	}
}
