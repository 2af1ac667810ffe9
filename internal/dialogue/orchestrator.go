package dialogue

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/keshon/troupe/internal/ai"
	"github.com/keshon/troupe/internal/config"
	"github.com/keshon/troupe/internal/giveaway"
	"github.com/keshon/troupe/internal/platform"
	"github.com/keshon/troupe/internal/scenario"
	"github.com/keshon/troupe/internal/telemetry"
)

// Orchestrator composes the scenario engine, the giveaway engine and
// telemetry into the pipeline handling one inbound event per call.
// A failure in one conversation never affects another.
type Orchestrator struct {
	contexts *ContextStore
	scen     *scenario.Engine
	give     *giveaway.Engine
	tel      *telemetry.Service
	limiter  *ReplyLimiter

	giveAPI   giveaway.API
	giveStore giveaway.Store
}

// NewOrchestrator wires the pipeline. All collaborators are required
// except telemetry, which may be nil in tests.
func NewOrchestrator(scen *scenario.Engine, give *giveaway.Engine, tel *telemetry.Service, contextCap, historyMax int) *Orchestrator {
	return &Orchestrator{
		contexts: NewContextStore(contextCap, historyMax),
		scen:     scen,
		give:     give,
		tel:      tel,
		limiter:  NewReplyLimiter(),
	}
}

// SetGiveawayPaths configures the optional claim routes beyond the
// button click.
func (o *Orchestrator) SetGiveawayPaths(api giveaway.API, store giveaway.Store) {
	o.giveAPI = api
	o.giveStore = store
}

// Initialize binds an account to its scenario before events arrive.
func (o *Orchestrator) Initialize(accountID string, sc *scenario.Scenario, initialScene string) error {
	return o.scen.LoadAccount(accountID, sc, initialScene)
}

// HotUpdate swaps an account's scenario in place. preserveState keeps
// the current scene and variables where the new document allows it.
func (o *Orchestrator) HotUpdate(accountID string, sc *scenario.Scenario, preserveState bool) bool {
	return o.scen.HotUpdate(accountID, sc, preserveState)
}

// Shutdown drops everything held for the account.
func (o *Orchestrator) Shutdown(accountID string) {
	o.scen.UnloadAccount(accountID)
	o.contexts.DropAccount(accountID)
	o.limiter.Forget(accountID)
}

// GetContext returns the dialogue context for the pair, if one exists.
func (o *Orchestrator) GetContext(accountID, conversationID string) (*Context, bool) {
	return o.contexts.Get(accountID, conversationID)
}

// ProcessMessage runs the full pipeline for one inbound message and
// returns the reply that was sent, or "" when the account stayed silent.
func (o *Orchestrator) ProcessMessage(accountID string, client platform.Client, cfg *config.AccountConfig, msg platform.Message) (string, error) {
	ctx := o.contexts.GetOrCreate(accountID, msg.ConversationID)
	ctx.proc.Lock()
	defer ctx.proc.Unlock()

	now := time.Now()
	ctx.touch(now)
	ctx.Mention(msg.SenderID)
	if msg.Text != "" {
		ctx.Append("user", msg.SenderName+": "+msg.Text)
	}

	if denied(cfg.KeywordDeny, msg.Text) {
		return "", nil
	}
	if len(cfg.KeywordAllow) > 0 && !msg.NewMember && !allowed(cfg.KeywordAllow, msg.Text) {
		return "", nil
	}

	if ok, reason := o.limiter.Allow(accountID, cfg, ctx.LastReplyAt(), now); !ok {
		log.Printf("[DIALOG] account=%s conv=%s skip: %s", accountID, msg.ConversationID, reason)
		return "", nil
	}

	reply, err := o.scen.ProcessMessage(accountID, scenario.Message{
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Text:           msg.Text,
		NewMember:      msg.NewMember,
	}, ctx.History(), ai.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens})
	if err != nil {
		o.recordReply(accountID, false, 0)
		return "", fmt.Errorf("scenario: %w", err)
	}
	if reply == "" {
		return "", nil
	}

	start := time.Now()
	if err := client.SendMessage(msg.ConversationID, reply); err != nil {
		o.recordReply(accountID, false, 0)
		return "", fmt.Errorf("send reply: %w", err)
	}

	sent := time.Now()
	ctx.NoteReply(sent)
	ctx.Append("assistant", reply)
	ctx.SetTopic(topicFrom(reply))
	o.limiter.Record(accountID, sent)
	o.recordReply(accountID, true, sent.Sub(start))
	return reply, nil
}

// ProcessButton handles one interactive-button click. A giveaway button
// short-circuits into the participation path; anything else is ignored.
func (o *Orchestrator) ProcessButton(accountID string, client platform.Client, cfg *config.AccountConfig, click platform.ButtonClick) (*giveaway.Result, error) {
	info, ok := o.give.Detect(click)
	if !ok {
		return nil, nil
	}
	if !cfg.GiveawayEnabled {
		return nil, nil
	}
	if !o.give.FirstSight(accountID, info.ID) {
		return nil, nil
	}

	ctx := o.contexts.GetOrCreate(accountID, click.ConversationID)
	ctx.proc.Lock()
	defer ctx.proc.Unlock()
	ctx.touch(time.Now())

	// Once the participation outcome is settled the scenario gets a
	// chance to comment on the giveaway in character.
	defer o.reactToGiveaway(accountID, client, cfg, click, ctx)

	if ok, reason := o.give.ShouldParticipate(accountID, info, cfg, time.Now()); !ok {
		log.Printf("[GIVEAWAY] account=%s giveaway=%s skip: %s", accountID, info.ID, reason)
		return nil, nil
	}

	res, err := o.give.Participate(accountID, info, giveaway.Paths{
		Clicker:   client,
		ButtonID:  click.CustomID,
		MessageID: click.MessageID,
		API:       o.giveAPI,
		Store:     o.giveStore,
	})
	if err != nil {
		// no participation path is configured; count it once and move on
		o.give.ReportResult(accountID, info, giveaway.Result{Reason: err.Error()})
		return nil, err
	}
	o.give.ReportResult(accountID, info, res)
	return &res, nil
}

// reactToGiveaway runs the scenario engine over a giveaway-marked
// message so giveaway-triggered scenes can fire. The caller holds the
// context's processing lock. Failures are logged and never touch the
// participation result.
func (o *Orchestrator) reactToGiveaway(accountID string, client platform.Client, cfg *config.AccountConfig, click platform.ButtonClick, ctx *Context) {
	now := time.Now()
	if ok, _ := o.limiter.Allow(accountID, cfg, ctx.LastReplyAt(), now); !ok {
		return
	}

	reply, err := o.scen.ProcessMessage(accountID, scenario.Message{
		ConversationID: click.ConversationID,
		SenderID:       click.SenderID,
		Giveaway:       true,
	}, ctx.History(), ai.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens})
	if err != nil {
		log.Printf("[GIVEAWAY] account=%s conv=%s reaction: %v", accountID, click.ConversationID, err)
		return
	}
	if reply == "" {
		return
	}

	start := time.Now()
	if err := client.SendMessage(click.ConversationID, reply); err != nil {
		log.Printf("[GIVEAWAY] account=%s conv=%s reaction send: %v", accountID, click.ConversationID, err)
		o.recordReply(accountID, false, 0)
		return
	}
	sent := time.Now()
	ctx.NoteReply(sent)
	ctx.Append("assistant", reply)
	o.limiter.Record(accountID, sent)
	o.recordReply(accountID, true, sent.Sub(start))
}

func (o *Orchestrator) recordReply(accountID string, success bool, latency time.Duration) {
	if o.tel != nil {
		o.tel.RecordReply(accountID, success, latency)
	}
}

func denied(deny []string, text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range deny {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func allowed(allow []string, text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range allow {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func topicFrom(reply string) string {
	reply = strings.TrimSpace(reply)
	if r := []rune(reply); len(r) > 60 {
		return string(r[:60])
	}
	return reply
}
