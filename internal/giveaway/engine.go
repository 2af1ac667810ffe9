package giveaway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keshon/troupe/internal/config"
	"github.com/keshon/troupe/internal/platform"
)

// ErrNoPath means no participation path (button, API, store) is configured.
var ErrNoPath = errors.New("no participation path configured")

// Clicker presses an interactive button. platform.Client satisfies this.
type Clicker interface {
	ClickButton(conversationID, messageID, customID string) error
}

// API is a structured claim endpoint, when the deployment has one.
type API interface {
	Claim(accountID string, info *Info) (float64, error)
}

// Store writes a claim directly into the game state store, the path of
// last resort when no client-side route exists.
type Store interface {
	WriteClaim(accountID string, info *Info) (float64, error)
}

// Paths bundles the configured participation routes, tried in order:
// button click, structured API, direct store write.
type Paths struct {
	Clicker   Clicker
	ButtonID  string // custom id to press, set when detection came from a button
	MessageID string
	API       API
	Store     Store
}

// Reporter receives terminal participation outcomes.
type Reporter interface {
	RecordGiveaway(accountID string, success bool, amount float64)
}

// Engine holds per-account dedup and participation history and runs the
// decision strategy. Safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	seen      map[string]map[string]time.Time // account -> giveaway id -> first sight
	lastPart  map[string]time.Time
	partTimes map[string][]time.Time
	strategy  Strategy
	reporter  Reporter

	seenTTL time.Duration
}

// NewEngine creates an engine with the default strategy stack.
// reporter may be nil.
func NewEngine(reporter Reporter) *Engine {
	return &Engine{
		seen:      make(map[string]map[string]time.Time),
		lastPart:  make(map[string]time.Time),
		partTimes: make(map[string][]time.Time),
		strategy:  DefaultStrategy(),
		reporter:  reporter,
		seenTTL:   24 * time.Hour,
	}
}

// SetStrategy replaces the decision stack.
func (e *Engine) SetStrategy(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategy = s
}

// Detect inspects a button click and returns giveaway info when the custom
// id matches the giveaway pattern.
func (e *Engine) Detect(click platform.ButtonClick) (*Info, bool) {
	info, ok := ParseButton(click.CustomID, click.ConversationID, click.SenderID)
	if !ok {
		return nil, false
	}
	return info, true
}

// HandleGameEvent folds a webhook-style event into detection. Only
// GIVEAWAY_SENT yields an Info; other known types are acknowledged without
// one, and unknown types are logged and dropped.
func (e *Engine) HandleGameEvent(ev *GameEvent) (*Info, bool) {
	if !KnownEventType(ev.EventType) {
		log.Printf("[GIVEAWAY] ignoring unknown event type %q id=%s", ev.EventType, ev.EventID)
		return nil, false
	}
	if ev.EventType != EventGiveawaySent {
		return nil, false
	}
	info := &Info{
		ID:             ev.EventID,
		ConversationID: ev.ConversationID,
	}
	if len(ev.Payload) > 0 {
		var p struct {
			SenderID string  `json:"sender_id"`
			Amount   float64 `json:"amount"`
			Shares   int     `json:"shares"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			info.SenderID = p.SenderID
			info.Amount = p.Amount
			info.Shares = p.Shares
			info.Remaining = p.Shares
		}
	}
	return info, true
}

// FirstSight marks the giveaway as seen for the account and reports whether
// this was the first time. A giveaway already seen is never reprocessed.
func (e *Engine) FirstSight(accountID, giveawayID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	byID := e.seen[accountID]
	if byID == nil {
		byID = make(map[string]time.Time)
		e.seen[accountID] = byID
	}
	now := time.Now()
	for id, at := range byID {
		if now.Sub(at) > e.seenTTL {
			delete(byID, id)
		}
	}
	if _, ok := byID[giveawayID]; ok {
		return false
	}
	byID[giveawayID] = now
	return true
}

// ShouldParticipate runs the strategy stack for the account.
func (e *Engine) ShouldParticipate(accountID string, info *Info, cfg *config.AccountConfig, now time.Time) (bool, string) {
	if !cfg.GiveawayEnabled {
		return false, "giveaways disabled"
	}
	e.mu.Lock()
	st := AccountState{
		LastParticipation: e.lastPart[accountID],
		HourCount:         countSince(e.partTimes[accountID], now.Add(-time.Hour)),
	}
	strategy := e.strategy
	e.mu.Unlock()
	return strategy.Allow(info, cfg, st, now)
}

// Participate attempts the configured paths in order of preference:
// interactive-button click, structured API call, direct store write.
// A path returning platform.ErrUnsupported counts as not configured.
// Transport or game failures yield Success=false with a reason, never an
// error past this boundary; ErrNoPath is the single typed refusal.
func (e *Engine) Participate(accountID string, info *Info, paths Paths) (Result, error) {
	res := Result{AttemptID: uuid.NewString(), GiveawayID: info.ID}

	if paths.Clicker != nil && paths.ButtonID != "" {
		err := paths.Clicker.ClickButton(info.ConversationID, paths.MessageID, paths.ButtonID)
		switch {
		case err == nil:
			res.Success = true
			e.recordParticipation(accountID)
			return res, nil
		case errors.Is(err, platform.ErrUnsupported):
			// client cannot press buttons, try the next path
		default:
			res.Reason = fmt.Sprintf("button click failed: %v", err)
			e.recordParticipation(accountID)
			return res, nil
		}
	}

	if paths.API != nil {
		won, err := paths.API.Claim(accountID, info)
		e.recordParticipation(accountID)
		if err != nil {
			res.Reason = fmt.Sprintf("api claim failed: %v", err)
			return res, nil
		}
		res.Success = true
		res.AmountWon = won
		return res, nil
	}

	if paths.Store != nil {
		won, err := paths.Store.WriteClaim(accountID, info)
		e.recordParticipation(accountID)
		if err != nil {
			res.Reason = fmt.Sprintf("store claim failed: %v", err)
			return res, nil
		}
		res.Success = true
		res.AmountWon = won
		return res, nil
	}

	return res, ErrNoPath
}

// ReportResult forwards a terminal outcome to the reporter, if any.
func (e *Engine) ReportResult(accountID string, info *Info, res Result) {
	if res.Success {
		log.Printf("[GIVEAWAY] account=%s giveaway=%s won=%.2f", accountID, info.ID, res.AmountWon)
	} else {
		log.Printf("[GIVEAWAY] account=%s giveaway=%s failed: %s", accountID, info.ID, res.Reason)
	}
	if e.reporter != nil {
		e.reporter.RecordGiveaway(accountID, res.Success, res.AmountWon)
	}
}

func (e *Engine) recordParticipation(accountID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.lastPart[accountID] = now
	cutoff := now.Add(-time.Hour)
	kept := e.partTimes[accountID][:0]
	for _, t := range e.partTimes[accountID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.partTimes[accountID] = append(kept, now)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
