package fleet

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keshon/troupe/internal/config"
	"github.com/keshon/troupe/internal/platform"
)

// flakyClient fails Connect a configured number of times before
// succeeding, counting every call.
type flakyClient struct {
	mu           sync.Mutex
	connectCalls int
	failFirst    int
	connected    atomic.Bool

	sendErr     error
	sendHook    func(conversationID, text string) error
	sent        int
	sentLog     []string
	handlerRegs int

	onMessage func(platform.Message)
	onButton  func(platform.ButtonClick)
}

func (c *flakyClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	if c.connectCalls <= c.failFirst {
		return errors.New("gateway unreachable")
	}
	c.connected.Store(true)
	return nil
}

func (c *flakyClient) Disconnect() error {
	c.connected.Store(false)
	return nil
}

func (c *flakyClient) Connected() bool { return c.connected.Load() }

func (c *flakyClient) SendMessage(conversationID, text string) error {
	c.mu.Lock()
	hook := c.sendHook
	sendErr := c.sendErr
	c.mu.Unlock()
	if hook != nil {
		if err := hook(conversationID, text); err != nil {
			return err
		}
	}
	if sendErr != nil {
		return sendErr
	}
	c.mu.Lock()
	c.sent++
	c.sentLog = append(c.sentLog, text)
	c.mu.Unlock()
	return nil
}

func (c *flakyClient) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.sentLog...)
}

func (c *flakyClient) ClickButton(_, _, _ string) error { return nil }

func (c *flakyClient) OnMessage(fn func(platform.Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.handlerRegs++
	c.mu.Unlock()
}

func (c *flakyClient) OnButton(fn func(platform.ButtonClick)) {
	c.mu.Lock()
	c.onButton = fn
	c.mu.Unlock()
}

// emit delivers a message the way the real gateway would.
func (c *flakyClient) emit(msg platform.Message) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (c *flakyClient) emitButton(click platform.ButtonClick) {
	c.mu.Lock()
	fn := c.onButton
	c.mu.Unlock()
	if fn != nil {
		fn(click)
	}
}

func (c *flakyClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

// newTestManager wires a manager around one flaky client with fast
// reconnect timing so tests do not sit in backoff sleeps.
func newTestManager(client *flakyClient, attempts int) *Manager {
	factory := func(string) (platform.Client, error) {
		var c platform.Client = client
		return c, nil
	}
	return NewManager(factory, time.Hour, time.Millisecond, attempts)
}

func TestStartSucceedsOnThirdAttempt(t *testing.T) {
	client := &flakyClient{failFirst: 2}
	m := newTestManager(client, 3)

	if _, err := m.Register("acc1", "acc1.token", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !m.Start("acc1") {
		t.Fatalf("start failed despite third attempt succeeding")
	}
	if got := client.calls(); got != 3 {
		t.Fatalf("connect calls = %d, want 3", got)
	}
	if info, _ := m.Status("acc1"); info.Status != StatusOnline {
		t.Fatalf("status = %s, want %s", info.Status, StatusOnline)
	}
	m.StopAll()
}

func TestStartExhaustsReconnectBudget(t *testing.T) {
	client := &flakyClient{failFirst: 10}
	m := newTestManager(client, 3)

	if _, err := m.Register("acc1", "acc1.token", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if m.Start("acc1") {
		t.Fatalf("start reported success with a dead client")
	}
	if got := client.calls(); got != 3 {
		t.Fatalf("connect calls = %d, want 3", got)
	}
	if info, _ := m.Status("acc1"); info.Status != StatusError {
		t.Fatalf("status = %s, want %s", info.Status, StatusError)
	}
}

// Stop issued while Start is sitting in reconnect backoff must cut the
// backoff short instead of waiting out the whole budget.
func TestStopInterruptsStartBackoff(t *testing.T) {
	client := &flakyClient{failFirst: 100}
	factory := func(string) (platform.Client, error) {
		var c platform.Client = client
		return c, nil
	}
	m := NewManager(factory, time.Hour, 30*time.Second, 5)

	if _, err := m.Register("acc1", "acc1.token", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	started := make(chan bool, 1)
	go func() { started <- m.Start("acc1") }()

	deadline := time.Now().Add(2 * time.Second)
	for client.calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first connect attempt never happened")
		}
		time.Sleep(time.Millisecond)
	}

	stopDone := make(chan struct{})
	go func() {
		m.Stop("acc1")
		close(stopDone)
	}()

	select {
	case <-stopDone:
	case <-time.After(time.Second):
		t.Fatalf("stop blocked behind the reconnect backoff")
	}
	select {
	case ok := <-started:
		if ok {
			t.Fatalf("cancelled start reported success")
		}
	case <-time.After(time.Second):
		t.Fatalf("start did not return after cancellation")
	}
	if info, _ := m.Status("acc1"); info.Status != StatusOffline {
		t.Fatalf("status = %s, want %s", info.Status, StatusOffline)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	m := newTestManager(&flakyClient{}, 1)

	first, err := m.Register("acc1", "acc1.token", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := m.Register("acc1", "acc1.token", nil)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if first != second {
		t.Fatalf("re-registration created a new account object")
	}
}

func TestRegisterSurfacesCredentialError(t *testing.T) {
	m := NewManager(func(string) (platform.Client, error) {
		return nil, platform.ErrCredentialNotFound
	}, time.Hour, time.Millisecond, 1)

	if _, err := m.Register("acc1", "missing.token", nil); !errors.Is(err, platform.ErrCredentialNotFound) {
		t.Fatalf("err = %v, want credential error", err)
	}
	if m.Account("acc1") != nil {
		t.Fatalf("failed registration left an account behind")
	}
}

func TestStartUnknownAccount(t *testing.T) {
	m := newTestManager(&flakyClient{}, 1)
	if m.Start("ghost") {
		t.Fatalf("started an account that was never registered")
	}
}

func TestStopAndRemove(t *testing.T) {
	client := &flakyClient{}
	m := newTestManager(client, 1)

	if _, err := m.Register("acc1", "acc1.token", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !m.Start("acc1") {
		t.Fatalf("start failed")
	}
	if !m.Stop("acc1") {
		t.Fatalf("stop failed")
	}
	if info, _ := m.Status("acc1"); info.Status != StatusOffline {
		t.Fatalf("status after stop = %s", info.Status)
	}
	if client.Connected() {
		t.Fatalf("stop left the client connected")
	}
	if !m.Remove("acc1") {
		t.Fatalf("remove failed")
	}
	if m.Account("acc1") != nil {
		t.Fatalf("account survived removal")
	}
	if m.Remove("acc1") {
		t.Fatalf("second removal reported success")
	}
}

func TestCounts(t *testing.T) {
	good := &flakyClient{}
	dead := &flakyClient{failFirst: 10}
	clients := map[string]*flakyClient{"up": good, "down": dead}
	m := NewManager(func(ref string) (platform.Client, error) {
		var c platform.Client = clients[ref]
		return c, nil
	}, time.Hour, time.Millisecond, 2)

	for _, id := range []string{"up", "down"} {
		if _, err := m.Register(id, id, nil); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	m.StartAll()

	online, total := m.Counts()
	if online != 1 || total != 2 {
		t.Fatalf("counts = (%d, %d), want (1, 2)", online, total)
	}
	m.StopAll()
}

func TestAccountConfigRoundtrip(t *testing.T) {
	m := newTestManager(&flakyClient{}, 1)
	if _, err := m.Register("acc1", "acc1.token", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	cfg, ok := m.AccountConfig("acc1")
	if !ok || cfg.ID != "acc1" {
		t.Fatalf("config = %+v ok=%v", cfg, ok)
	}

	cfg.HourlyReplyCap = 3
	if !m.SetAccountConfig("acc1", cfg) {
		t.Fatalf("set config failed")
	}
	if got, _ := m.AccountConfig("acc1"); got.HourlyReplyCap != 3 {
		t.Fatalf("live config = %+v", got)
	}
	if _, ok := m.AccountConfig("ghost"); ok {
		t.Fatalf("config for unknown account")
	}
}

func TestSnapshotCounters(t *testing.T) {
	m := newTestManager(&flakyClient{}, 1)
	acct, err := m.Register("acc1", "acc1.token", config.DefaultAccountConfig("acc1"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	acct.BumpMessages()
	acct.BumpMessages()
	acct.BumpReplies()
	acct.BumpErrors()
	acct.Touch(time.Now())

	info := acct.Snapshot()
	if info.Messages != 2 || info.Replies != 1 || info.Errors != 1 {
		t.Fatalf("snapshot = %+v", info)
	}
	if info.LastActivity.IsZero() {
		t.Fatalf("touch not recorded")
	}
}
