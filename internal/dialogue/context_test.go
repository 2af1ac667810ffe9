package dialogue

import (
	"fmt"
	"testing"
	"time"
)

func TestContextHistoryBounded(t *testing.T) {
	c := newContext("acc1", "conv1", 3)
	for i := 0; i < 5; i++ {
		c.Append("user", fmt.Sprintf("msg %d", i))
	}
	h := c.History()
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	if h[0].Content != "msg 2" || h[2].Content != "msg 4" {
		t.Fatalf("wrong window kept: %v", h)
	}
}

func TestContextDailyReplyCounterResets(t *testing.T) {
	c := newContext("acc1", "conv1", 0)
	yesterday := time.Now().Add(-24 * time.Hour)
	c.NoteReply(yesterday)
	c.NoteReply(yesterday)
	if c.RepliesToday() != 2 {
		t.Fatalf("replies = %d", c.RepliesToday())
	}
	c.NoteReply(time.Now())
	if c.RepliesToday() != 1 {
		t.Fatalf("counter must reset on a new day, got %d", c.RepliesToday())
	}
}

func TestContextMentions(t *testing.T) {
	c := newContext("acc1", "conv1", 0)
	c.Mention("user9")
	c.Mention("")
	if !c.Mentioned("user9") || c.Mentioned("") || c.Mentioned("user1") {
		t.Fatalf("mention tracking broken")
	}
}

func TestContextStoreEvictsLRU(t *testing.T) {
	s := NewContextStore(2, 0)
	a := s.GetOrCreate("acc1", "c1")
	time.Sleep(2 * time.Millisecond)
	s.GetOrCreate("acc1", "c2")
	time.Sleep(2 * time.Millisecond)

	// refresh c1 so c2 becomes the oldest
	if got := s.GetOrCreate("acc1", "c1"); got != a {
		t.Fatalf("GetOrCreate must return the existing context")
	}
	time.Sleep(2 * time.Millisecond)
	s.GetOrCreate("acc1", "c3")

	if s.Len() != 2 {
		t.Fatalf("store size = %d, want cap 2", s.Len())
	}
	if _, ok := s.Get("acc1", "c2"); ok {
		t.Fatalf("least recently used context survived eviction")
	}
	if _, ok := s.Get("acc1", "c1"); !ok {
		t.Fatalf("recently used context evicted")
	}
}

func TestContextStoreDropAccount(t *testing.T) {
	s := NewContextStore(10, 0)
	s.GetOrCreate("acc1", "c1")
	s.GetOrCreate("acc1", "c2")
	s.GetOrCreate("acc2", "c1")
	s.DropAccount("acc1")
	if s.Len() != 1 {
		t.Fatalf("store size = %d after drop, want 1", s.Len())
	}
	if _, ok := s.Get("acc2", "c1"); !ok {
		t.Fatalf("other account's context dropped")
	}
}
