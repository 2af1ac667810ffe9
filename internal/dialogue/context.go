// Package dialogue holds per-conversation runtime state and composes the
// scenario, giveaway and telemetry services into a single pipeline that
// handles one inbound event.
package dialogue

import (
	"sync"
	"time"

	"github.com/keshon/troupe/internal/ai"
)

// Context is the bounded runtime memory for one (account, conversation)
// pair. Created lazily on first event, evicted LRU under the store cap.
type Context struct {
	AccountID      string
	ConversationID string

	// proc serializes the whole pipeline for this conversation so events
	// are handled strictly in arrival order.
	proc sync.Mutex

	mu           sync.Mutex
	history      []ai.Message
	historyMax   int
	lastReplyAt  time.Time
	repliesToday int
	dayStart     time.Time
	topic        string
	mentioned    map[string]bool
	lastUsed     time.Time
}

func newContext(accountID, conversationID string, historyMax int) *Context {
	if historyMax <= 0 {
		historyMax = 40
	}
	return &Context{
		AccountID:      accountID,
		ConversationID: conversationID,
		historyMax:     historyMax,
		mentioned:      make(map[string]bool),
		dayStart:       startOfDay(time.Now()),
	}
}

// Append adds one message to the bounded history, dropping the oldest.
func (c *Context) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, ai.Message{Role: role, Content: content})
	if len(c.history) > c.historyMax {
		c.history = c.history[len(c.history)-c.historyMax:]
	}
}

// History returns a copy of the message window, oldest first.
func (c *Context) History() []ai.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ai.Message, len(c.history))
	copy(out, c.history)
	return out
}

// NoteReply records an outgoing reply for rate accounting.
func (c *Context) NoteReply(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if day := startOfDay(now); day.After(c.dayStart) {
		c.dayStart = day
		c.repliesToday = 0
	}
	c.lastReplyAt = now
	c.repliesToday++
}

// LastReplyAt returns when this conversation last got a reply.
func (c *Context) LastReplyAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReplyAt
}

// RepliesToday returns the number of replies sent since midnight.
func (c *Context) RepliesToday() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repliesToday
}

// SetTopic records the current conversation topic.
func (c *Context) SetTopic(t string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = t
}

// Topic returns the current conversation topic.
func (c *Context) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

// Mention records an identity seen in this conversation.
func (c *Context) Mention(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mentioned[id] = true
}

// Mentioned reports whether the identity was seen before.
func (c *Context) Mentioned(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mentioned[id]
}

func (c *Context) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ContextStore is a typed, size-bounded map of dialogue contexts with LRU
// eviction.
type ContextStore struct {
	mu         sync.Mutex
	cap        int
	historyMax int
	items      map[string]*Context
}

// NewContextStore creates a store holding at most cap contexts.
func NewContextStore(cap, historyMax int) *ContextStore {
	if cap <= 0 {
		cap = 512
	}
	return &ContextStore{
		cap:        cap,
		historyMax: historyMax,
		items:      make(map[string]*Context),
	}
}

func key(accountID, conversationID string) string {
	return accountID + "/" + conversationID
}

// GetOrCreate returns the context for the pair, creating it lazily and
// evicting the least recently used entry when the store is full.
func (s *ContextStore) GetOrCreate(accountID, conversationID string) *Context {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(accountID, conversationID)
	if c, ok := s.items[k]; ok {
		c.touch(now)
		return c
	}
	if len(s.items) >= s.cap {
		s.evictOldest()
	}
	c := newContext(accountID, conversationID, s.historyMax)
	c.lastUsed = now
	s.items[k] = c
	return c
}

// Get returns the context if present.
func (s *ContextStore) Get(accountID, conversationID string) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[key(accountID, conversationID)]
	return c, ok
}

// DropAccount removes every context belonging to the account.
func (s *ContextStore) DropAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.items {
		if c.AccountID == accountID {
			delete(s.items, k)
		}
	}
}

// Len returns the number of live contexts.
func (s *ContextStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// evictOldest drops the context with the oldest lastUsed. Caller holds s.mu.
func (s *ContextStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, c := range s.items {
		c.mu.Lock()
		used := c.lastUsed
		c.mu.Unlock()
		if first || used.Before(oldest) {
			oldest = used
			oldestKey = k
			first = false
		}
	}
	if oldestKey != "" {
		delete(s.items, oldestKey)
	}
}
