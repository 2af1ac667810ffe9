// Package fleet owns the account registry: registration, the per-account
// connection lifecycle (start, health check, reconnect, stop), and the
// event dispatch pool feeding the dialogue pipeline.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keshon/troupe/internal/config"
	"github.com/keshon/troupe/internal/platform"
	"github.com/keshon/troupe/pkg/jobmgr"
	"github.com/keshon/troupe/pkg/retrylimit"
	"github.com/keshon/troupe/pkg/util"
)

// ErrUnknownAccount is returned for ids that were never registered.
var ErrUnknownAccount = errors.New("fleet: unknown account")

// Status of one account connection.
type Status string

const (
	StatusOffline  Status = "offline"
	StatusStarting Status = "starting"
	StatusOnline   Status = "online"
	StatusError    Status = "error"
	StatusStopping Status = "stopping"
)

// Account is the runtime object for one registered account.
type Account struct {
	ID     string
	Client platform.Client

	// lifecycle serializes start/stop/reconnect for this account
	lifecycle sync.Mutex

	mu          sync.Mutex
	status      Status
	cfg         *config.AccountConfig
	startedAt   time.Time
	lastSeen    time.Time
	startCancel context.CancelFunc

	messages atomic.Int64
	replies  atomic.Int64
	errors   atomic.Int64

	listening     atomic.Bool
	handlersBound atomic.Bool
}

// Status returns the current lifecycle status.
func (a *Account) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Account) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	if s == StatusOnline {
		a.startedAt = time.Now()
	}
	a.mu.Unlock()
}

// Config returns a copy of the account's declarative config.
func (a *Account) Config() *config.AccountConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Clone()
}

// SetConfig replaces the account's config (control surface).
func (a *Account) SetConfig(cfg *config.AccountConfig) {
	cfg.Normalize()
	a.mu.Lock()
	a.cfg = cfg.Clone()
	a.mu.Unlock()
}

// Touch records inbound activity.
func (a *Account) Touch(now time.Time) {
	a.mu.Lock()
	a.lastSeen = now
	a.mu.Unlock()
}

// BumpMessages increments the inbound message counter.
func (a *Account) BumpMessages() { a.messages.Add(1) }

// BumpReplies increments the sent reply counter.
func (a *Account) BumpReplies() { a.replies.Add(1) }

// BumpErrors increments the per-event error counter.
func (a *Account) BumpErrors() { a.errors.Add(1) }

// Info is a point-in-time snapshot of an account.
type Info struct {
	ID           string
	Status       Status
	Messages     int64
	Replies      int64
	Errors       int64
	StartedAt    time.Time
	LastActivity time.Time
}

// Snapshot captures the account's current state.
func (a *Account) Snapshot() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Info{
		ID:           a.ID,
		Status:       a.status,
		Messages:     a.messages.Load(),
		Replies:      a.replies.Load(),
		Errors:       a.errors.Load(),
		StartedAt:    a.startedAt,
		LastActivity: a.lastSeen,
	}
}

// ClientFactory builds a platform client from a credential reference.
// Registration surfaces its credential errors to the caller.
type ClientFactory func(credentialRef string) (platform.Client, error)

// Manager owns every account's lifecycle. Transitions for a single
// account are serialized; different accounts never block each other.
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*Account

	factory ClientFactory
	jobs    *jobmgr.Manager

	healthInterval    time.Duration
	reconnectAttempts int
	reconnectDelay    time.Duration
}

// NewManager creates a lifecycle manager.
func NewManager(factory ClientFactory, healthInterval, reconnectDelay time.Duration, reconnectAttempts int) *Manager {
	if healthInterval <= 0 {
		healthInterval = 30 * time.Second
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if reconnectAttempts <= 0 {
		reconnectAttempts = 5
	}
	return &Manager{
		accounts: make(map[string]*Account),
		factory:  factory,
		jobs: jobmgr.NewManager(func(msg string) {
			log.Printf("[FLEET] job %s", msg)
		}),
		healthInterval:    healthInterval,
		reconnectAttempts: reconnectAttempts,
		reconnectDelay:    reconnectDelay,
	}
}

// Register creates the account's runtime object and client. Registering
// an already-known id returns the existing account unchanged.
func (m *Manager) Register(id, credentialRef string, cfg *config.AccountConfig) (*Account, error) {
	m.mu.RLock()
	existing := m.accounts[id]
	m.mu.RUnlock()
	if existing != nil {
		return existing, nil
	}

	client, err := m.factory(credentialRef)
	if err != nil {
		return nil, fmt.Errorf("register account %s: %w", id, err)
	}
	if cfg == nil {
		cfg = config.DefaultAccountConfig(id)
	}
	cfg.Normalize()

	acct := &Account{
		ID:     id,
		Client: client,
		status: StatusOffline,
		cfg:    cfg.Clone(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if again := m.accounts[id]; again != nil {
		return again, nil
	}
	m.accounts[id] = acct
	return acct, nil
}

// Start connects the account, retrying up to the reconnect budget, and
// launches its health-check task. Returns false for unknown ids or when
// every attempt failed.
func (m *Manager) Start(id string) bool {
	acct := m.Account(id)
	if acct == nil {
		return false
	}
	acct.lifecycle.Lock()
	defer acct.lifecycle.Unlock()

	if acct.Status() == StatusOnline {
		return true
	}
	acct.setStatus(StatusStarting)

	// Stop can cancel this context mid-backoff, so a stop request does
	// not wait out the remaining reconnect budget.
	ctx, cancel := context.WithCancel(context.Background())
	acct.mu.Lock()
	acct.startCancel = cancel
	acct.mu.Unlock()
	err := m.connectWithRetry(ctx, acct)
	acct.mu.Lock()
	acct.startCancel = nil
	acct.mu.Unlock()
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("[FLEET] account %s start cancelled", id)
			acct.setStatus(StatusOffline)
			return false
		}
		log.Printf("[FLEET] account %s failed to start: %v", id, err)
		acct.setStatus(StatusError)
		return false
	}
	acct.setStatus(StatusOnline)
	log.Printf("[FLEET] account %s is online", id)

	if err := m.jobs.StartAsync("health:"+id, func(ctx context.Context) error {
		m.healthLoop(ctx, acct)
		return nil
	}); err != nil {
		log.Printf("[FLEET] health task for %s: %v", id, err)
	}
	return true
}

// Stop cancels the account's background tasks and closes the connection.
func (m *Manager) Stop(id string) bool {
	acct := m.Account(id)
	if acct == nil {
		return false
	}
	// Interrupt an in-flight Start before queueing on its lock.
	acct.mu.Lock()
	if acct.startCancel != nil {
		acct.startCancel()
	}
	acct.mu.Unlock()

	acct.lifecycle.Lock()
	defer acct.lifecycle.Unlock()

	acct.setStatus(StatusStopping)
	_ = m.jobs.Stop("health:" + id) // not-running is fine
	if err := acct.Client.Disconnect(); err != nil {
		log.Printf("[FLEET] account %s disconnect: %v", id, err)
	}
	acct.setStatus(StatusOffline)
	log.Printf("[FLEET] account %s stopped", id)
	return true
}

// Remove stops the account and drops it from the registry.
func (m *Manager) Remove(id string) bool {
	acct := m.Account(id)
	if acct == nil {
		return false
	}
	m.Stop(id)
	m.mu.Lock()
	delete(m.accounts, id)
	m.mu.Unlock()
	return true
}

// Account returns the live account object, or nil.
func (m *Manager) Account(id string) *Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts[id]
}

// Status returns a snapshot for one account.
func (m *Manager) Status(id string) (Info, bool) {
	acct := m.Account(id)
	if acct == nil {
		return Info{}, false
	}
	return acct.Snapshot(), true
}

// ListAll snapshots every registered account.
func (m *Manager) ListAll() []Info {
	m.mu.RLock()
	accounts := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, a)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Snapshot())
	}
	return out
}

// StartAll starts every registered account with bounded parallelism.
// One account failing to start never blocks the others.
func (m *Manager) StartAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	_ = util.Parallel(ids, 4, func(_ context.Context, id string) error {
		if !m.Start(id) {
			log.Printf("[FLEET] account %s did not start", id)
		}
		return nil
	})
}

// StopAll stops every account and waits for their tasks.
func (m *Manager) StopAll() {
	for _, info := range m.ListAll() {
		m.Stop(info.ID)
	}
	m.jobs.StopAll()
}

// Counts reports (online, total) for telemetry.
func (m *Manager) Counts() (online, total int) {
	for _, info := range m.ListAll() {
		total++
		if info.Status == StatusOnline {
			online++
		}
	}
	return online, total
}

// AccountConfig returns a copy of the account's config (control surface).
func (m *Manager) AccountConfig(id string) (*config.AccountConfig, bool) {
	acct := m.Account(id)
	if acct == nil {
		return nil, false
	}
	return acct.Config(), true
}

// SetAccountConfig replaces the account's live config (control surface).
func (m *Manager) SetAccountConfig(id string, cfg *config.AccountConfig) bool {
	acct := m.Account(id)
	if acct == nil {
		return false
	}
	acct.SetConfig(cfg)
	return true
}

// connectWithRetry attempts Connect with backoff up to the attempt budget.
func (m *Manager) connectWithRetry(ctx context.Context, acct *Account) error {
	return retrylimit.WithRetryConfig(ctx, func() error {
		return acct.Client.Connect()
	}, nil, retrylimit.RetryConfig{
		MaxAttempts:  m.reconnectAttempts,
		InitialDelay: m.reconnectDelay,
		MaxDelay:     2 * time.Minute,
		Multiplier:   2.0,
		Jitter:       true,
		OnRetry: func(attempt int, err error) {
			log.Printf("[FLEET] account %s connect attempt %d failed: %v", acct.ID, attempt, err)
		},
	})
}

// healthLoop watches the connection while the account is online and runs
// the reconnect path when it dies. Cancelled by Stop.
func (m *Manager) healthLoop(ctx context.Context, acct *Account) {
	ticker := time.NewTicker(m.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if acct.Client.Connected() {
				continue
			}
			log.Printf("[FLEET] account %s connection lost, reconnecting", acct.ID)
			acct.setStatus(StatusError)
			if err := m.connectWithRetry(ctx, acct); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[FLEET] account %s reconnect budget exhausted: %v", acct.ID, err)
				acct.setStatus(StatusError)
				return
			}
			acct.setStatus(StatusOnline)
			log.Printf("[FLEET] account %s reconnected", acct.ID)
		}
	}
}
