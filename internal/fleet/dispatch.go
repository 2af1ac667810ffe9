package fleet

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/keshon/troupe/internal/config"
	"github.com/keshon/troupe/internal/dialogue"
	"github.com/keshon/troupe/internal/giveaway"
	"github.com/keshon/troupe/internal/platform"
	"github.com/keshon/troupe/internal/telemetry"
	"github.com/keshon/troupe/pkg/jobmgr"
)

// defaultQueueCap bounds each conversation's pending-event queue. When a
// queue is full the newest event is dropped rather than piling up
// goroutines behind a slow generation call.
const defaultQueueCap = 64

// dispatchEvent is one queued platform event; exactly one field is set.
type dispatchEvent struct {
	msg   *platform.Message
	click *platform.ButtonClick
}

// Pool routes platform events from every online account into the
// dialogue orchestrator. Events for one (account, conversation) pair go
// through a bounded FIFO queue drained by a single worker, so they are
// processed strictly in arrival order and a slow conversation never
// stalls the others. A failing handler is recorded and logged but never
// takes a worker down.
type Pool struct {
	mgr  *Manager
	orch *dialogue.Orchestrator
	tel  *telemetry.Service
	jobs *jobmgr.Manager

	qmu      sync.Mutex
	queues   map[string]chan dispatchEvent
	queueCap int
	done     chan struct{}
	workers  sync.WaitGroup

	sink func(accountID string, res *giveaway.Result)
}

// NewPool creates a dispatch pool over the given manager.
func NewPool(mgr *Manager, orch *dialogue.Orchestrator, tel *telemetry.Service) *Pool {
	return &Pool{
		mgr:  mgr,
		orch: orch,
		tel:  tel,
		jobs: jobmgr.NewManager(func(msg string) {
			log.Printf("[DISPATCH] job %s", msg)
		}),
		queues:   make(map[string]chan dispatchEvent),
		queueCap: defaultQueueCap,
		done:     make(chan struct{}),
	}
}

// SetResultSink installs a hook receiving every terminal giveaway
// outcome, used to persist participation records.
func (p *Pool) SetResultSink(fn func(accountID string, res *giveaway.Result)) {
	p.sink = fn
}

// Start attaches a listener to every currently online account.
func (p *Pool) Start() {
	for _, info := range p.mgr.ListAll() {
		if info.Status != StatusOnline {
			continue
		}
		if err := p.StartMonitoring(info.ID); err != nil {
			log.Printf("[DISPATCH] listener for %s: %v", info.ID, err)
		}
	}
}

// StartMonitoring attaches a listener to one account. Calling it again
// for an account that is already monitored is a no-op.
func (p *Pool) StartMonitoring(id string) error {
	if p.jobs.Running("listen:" + id) {
		return nil
	}
	acct := p.mgr.Account(id)
	if acct == nil {
		return ErrUnknownAccount
	}
	if acct.handlersBound.CompareAndSwap(false, true) {
		// Handlers register once per account; the listening flag turns
		// them into no-ops while monitoring is stopped.
		acct.Client.OnMessage(func(msg platform.Message) {
			p.handleMessage(acct, msg)
		})
		acct.Client.OnButton(func(click platform.ButtonClick) {
			p.handleButton(acct, click)
		})
	}
	acct.listening.Store(true)
	return p.jobs.StartAsync("listen:"+id, func(ctx context.Context) error {
		<-ctx.Done()
		acct.listening.Store(false)
		return nil
	})
}

// StopMonitoring detaches the listener for one account. Queued events
// already accepted are still drained.
func (p *Pool) StopMonitoring(id string) {
	if acct := p.mgr.Account(id); acct != nil {
		acct.listening.Store(false)
	}
	_ = p.jobs.Stop("listen:" + id)
}

// Stop detaches every listener, stops the queue workers and waits for
// them to drain.
func (p *Pool) Stop() {
	for _, info := range p.mgr.ListAll() {
		if acct := p.mgr.Account(info.ID); acct != nil {
			acct.listening.Store(false)
		}
	}
	p.jobs.StopAll()
	close(p.done)
	p.workers.Wait()
}

// handleMessage filters one inbound message and queues it for the
// conversation's worker. Runs on the client's delivery path, so it only
// does cheap bookkeeping.
func (p *Pool) handleMessage(acct *Account, msg platform.Message) {
	if !acct.listening.Load() {
		return
	}
	if !msg.Group {
		return
	}
	if !conversationAllowed(acct.Config(), msg.ConversationID) {
		return
	}

	acct.BumpMessages()
	acct.Touch(time.Now())
	p.tel.RecordMessage(acct.ID)

	p.enqueue(acct, msg.ConversationID, dispatchEvent{msg: &msg})
}

// handleButton filters one button event and queues it.
func (p *Pool) handleButton(acct *Account, click platform.ButtonClick) {
	if !acct.listening.Load() {
		return
	}
	if !click.Group {
		return
	}
	if !conversationAllowed(acct.Config(), click.ConversationID) {
		return
	}

	p.enqueue(acct, click.ConversationID, dispatchEvent{click: &click})
}

// enqueue hands the event to the conversation's worker, creating queue
// and worker on first use. A full queue drops the event.
func (p *Pool) enqueue(acct *Account, conversationID string, ev dispatchEvent) {
	key := acct.ID + "/" + conversationID

	p.qmu.Lock()
	select {
	case <-p.done:
		p.qmu.Unlock()
		return
	default:
	}
	ch, ok := p.queues[key]
	if !ok {
		ch = make(chan dispatchEvent, p.queueCap)
		p.queues[key] = ch
		p.workers.Add(1)
		go p.drain(acct, ch)
	}
	p.qmu.Unlock()

	select {
	case ch <- ev:
	default:
		log.Printf("[DISPATCH] account %s conversation %s queue full, dropping event", acct.ID, conversationID)
	}
}

// drain processes one conversation's events in order until the pool stops.
func (p *Pool) drain(acct *Account, ch chan dispatchEvent) {
	defer p.workers.Done()
	for {
		select {
		case <-p.done:
			return
		case ev := <-ch:
			switch {
			case ev.msg != nil:
				p.processMessage(acct, *ev.msg)
			case ev.click != nil:
				p.processButton(acct, *ev.click)
			}
		}
	}
}

// processMessage runs the reply pipeline for one queued message.
func (p *Pool) processMessage(acct *Account, msg platform.Message) {
	reply, err := p.orch.ProcessMessage(acct.ID, acct.Client, acct.Config(), msg)
	if err != nil {
		acct.BumpErrors()
		p.tel.RecordError(acct.ID)
		log.Printf("[DISPATCH] account %s message in %s: %v", acct.ID, msg.ConversationID, err)
		return
	}
	if reply != "" {
		acct.BumpReplies()
	}
}

// processButton runs the giveaway pipeline for one queued click.
func (p *Pool) processButton(acct *Account, click platform.ButtonClick) {
	res, err := p.orch.ProcessButton(acct.ID, acct.Client, acct.Config(), click)
	if err != nil {
		acct.BumpErrors()
		p.tel.RecordError(acct.ID)
		log.Printf("[DISPATCH] account %s button in %s: %v", acct.ID, click.ConversationID, err)
		return
	}
	if res != nil && p.sink != nil {
		p.sink(acct.ID, res)
	}
}

// conversationAllowed applies the account allowlist; empty means all.
func conversationAllowed(cfg *config.AccountConfig, conversationID string) bool {
	if len(cfg.Conversations) == 0 {
		return true
	}
	for _, id := range cfg.Conversations {
		if id == conversationID {
			return true
		}
	}
	return false
}
