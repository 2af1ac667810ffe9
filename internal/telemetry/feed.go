package telemetry

import "sync"

// UpdateKind distinguishes feed payloads.
type UpdateKind string

const (
	UpdateEvent UpdateKind = "event"
	UpdateAlert UpdateKind = "alert"
)

// Update is one push-style feed item: a telemetry event or a raised alert.
type Update struct {
	Kind  UpdateKind
	Event *Event
	Alert *Alert
}

// feed fans updates out to subscribers. Slow subscribers drop updates
// rather than block the recording path.
type feed struct {
	mu   sync.Mutex
	subs map[chan Update]struct{}
}

func newFeed() *feed {
	return &feed{subs: make(map[chan Update]struct{})}
}

func (f *feed) publish(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe registers a buffered feed channel.
func (s *Service) Subscribe() chan Update {
	ch := make(chan Update, 64)
	s.feed.mu.Lock()
	s.feed.subs[ch] = struct{}{}
	s.feed.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a feed channel.
func (s *Service) Unsubscribe(ch chan Update) {
	s.feed.mu.Lock()
	if _, ok := s.feed.subs[ch]; ok {
		delete(s.feed.subs, ch)
		close(ch)
	}
	s.feed.mu.Unlock()
}
