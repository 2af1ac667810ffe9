// Package giveaway detects time-sensitive monetary giveaway events in group
// conversations and decides, per account, whether and how to participate.
package giveaway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ButtonPrefix marks interactive buttons that open a giveaway claim.
// Custom id layout: giveaway:<id>:<amount>:<shares>
const ButtonPrefix = "giveaway:"

// Info is one detected giveaway.
type Info struct {
	ID             string
	ConversationID string
	SenderID       string
	Amount         float64
	Shares         int
	Remaining      int
}

// Result is the terminal outcome of one participation attempt.
type Result struct {
	AttemptID  string
	GiveawayID string
	Success    bool
	AmountWon  float64
	Reason     string
}

// Event types accepted on the webhook-style game feed.
const (
	EventGameStart       = "GAME_START"
	EventGameEnd         = "GAME_END"
	EventGiveawaySent    = "GIVEAWAY_SENT"
	EventGiveawayClaimed = "GIVEAWAY_CLAIMED"
	EventResultAnnounced = "RESULT_ANNOUNCED"
)

// GameEvent is the webhook-style event envelope. Unknown event types are
// logged and ignored by the consumer, never rejected.
type GameEvent struct {
	EventType      string          `json:"event_type"`
	EventID        string          `json:"event_id"`
	ConversationID string          `json:"conversation_id"`
	GameID         string          `json:"game_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// KnownEventType reports whether t is part of the accepted set.
func KnownEventType(t string) bool {
	switch t {
	case EventGameStart, EventGameEnd, EventGiveawaySent, EventGiveawayClaimed, EventResultAnnounced:
		return true
	}
	return false
}

// ParseGameEvent decodes one webhook event.
func ParseGameEvent(b []byte) (*GameEvent, error) {
	var ev GameEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode game event: %w", err)
	}
	if ev.EventID == "" {
		return nil, fmt.Errorf("game event without event_id")
	}
	return &ev, nil
}

// ParseButton extracts giveaway parameters from a button custom id.
// Returns false when the id is not a giveaway button or is malformed.
func ParseButton(customID, conversationID, senderID string) (*Info, bool) {
	if !strings.HasPrefix(customID, ButtonPrefix) {
		return nil, false
	}
	parts := strings.Split(strings.TrimPrefix(customID, ButtonPrefix), ":")
	if len(parts) < 1 || parts[0] == "" {
		return nil, false
	}
	info := &Info{
		ID:             parts[0],
		ConversationID: conversationID,
		SenderID:       senderID,
	}
	if len(parts) > 1 {
		if amt, err := strconv.ParseFloat(parts[1], 64); err == nil {
			info.Amount = amt
		}
	}
	if len(parts) > 2 {
		if n, err := strconv.Atoi(parts[2]); err == nil {
			info.Shares = n
			info.Remaining = n
		}
	}
	return info, true
}
