package scenario

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Selector picks a response for one (account, conversation) key while
// avoiding recent repeats. The similarity heuristic behind IsDuplicate is
// policy and may change; the interface is the contract.
type Selector interface {
	Select(key string, resps []Response, now time.Time, strict bool) (*Response, bool)
	Record(key, template, text string, now time.Time)
	IsDuplicate(key, text string, now time.Time) bool
}

type sentReply struct {
	template string
	text     string
	at       time.Time
}

// RecentSelector remembers replies sent per key within a trailing window.
// Preference order: responses whose text was not sent recently, then
// templates not used recently, then uniform random (unless strict).
type RecentSelector struct {
	mu      sync.Mutex
	window  time.Duration
	overlap float64 // word-overlap ratio treated as "same reply"
	sent    map[string][]sentReply
}

// NewRecentSelector builds a selector. window <= 0 gets 10 minutes,
// overlap <= 0 gets 0.7.
func NewRecentSelector(window time.Duration, overlap float64) *RecentSelector {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if overlap <= 0 {
		overlap = 0.7
	}
	return &RecentSelector{
		window:  window,
		overlap: overlap,
		sent:    make(map[string][]sentReply),
	}
}

// Select returns the chosen response. The second return is false only in
// strict mode with every candidate recently duplicated.
func (s *RecentSelector) Select(key string, resps []Response, now time.Time, strict bool) (*Response, bool) {
	if len(resps) == 0 {
		return nil, false
	}
	s.mu.Lock()
	recent := s.prune(key, now)
	s.mu.Unlock()

	var fresh []int
	for i := range resps {
		if !s.similarToAny(resps[i].Template, recent) {
			fresh = append(fresh, i)
		}
	}
	if len(fresh) == 0 {
		for i := range resps {
			if !templateUsed(resps[i].Template, recent) {
				fresh = append(fresh, i)
			}
		}
	}
	if len(fresh) == 0 {
		if strict {
			return nil, false
		}
		return &resps[rand.Intn(len(resps))], true
	}
	return &resps[fresh[rand.Intn(len(fresh))]], true
}

// Record remembers a sent reply. Call after the reply actually went out.
func (s *RecentSelector) Record(key, template, text string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.prune(key, now)
	s.sent[key] = append(entries, sentReply{template: template, text: text, at: now})
}

// IsDuplicate reports whether text word-overlaps any recently sent reply.
func (s *RecentSelector) IsDuplicate(key, text string, now time.Time) bool {
	s.mu.Lock()
	recent := s.prune(key, now)
	s.mu.Unlock()
	return s.similarToAny(text, recent)
}

// prune drops entries older than the window. Caller holds s.mu.
func (s *RecentSelector) prune(key string, now time.Time) []sentReply {
	cutoff := now.Add(-s.window)
	entries := s.sent[key]
	var kept []sentReply
	for _, e := range entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if kept == nil {
		delete(s.sent, key)
	} else {
		s.sent[key] = kept
	}
	return kept
}

func (s *RecentSelector) similarToAny(text string, recent []sentReply) bool {
	for _, e := range recent {
		if e.text == text || wordOverlap(e.text, text) >= s.overlap {
			return true
		}
	}
	return false
}

func templateUsed(template string, recent []sentReply) bool {
	for _, e := range recent {
		if e.template == template {
			return true
		}
	}
	return false
}

// wordOverlap returns shared-word count over the smaller word set, 0..1.
func wordOverlap(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	small, big := wa, wb
	if len(wb) < len(wa) {
		small, big = wb, wa
	}
	shared := 0
	for w := range small {
		if big[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if w != "" {
			out[w] = true
		}
	}
	return out
}
