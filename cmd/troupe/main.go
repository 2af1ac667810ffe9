// cmd/troupe/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/keshon/troupe/internal/ai"
	"github.com/keshon/troupe/internal/config"
	"github.com/keshon/troupe/internal/controls"
	"github.com/keshon/troupe/internal/dialogue"
	"github.com/keshon/troupe/internal/fleet"
	"github.com/keshon/troupe/internal/giveaway"
	"github.com/keshon/troupe/internal/platform"
	"github.com/keshon/troupe/internal/roles"
	"github.com/keshon/troupe/internal/scenario"
	"github.com/keshon/troupe/internal/storage"
	"github.com/keshon/troupe/internal/telemetry"
	v "github.com/keshon/troupe/internal/version"
)

func main() {
	log.Printf("[INFO] Starting %v fleet...", v.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.New()

	store, err := storage.New(cfg.DatastorePath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	tel := telemetry.NewService(telemetry.Thresholds{
		ErrorRate:         cfg.ErrorRateAlert,
		ErrorRateWarning:  cfg.ErrorRateWarning,
		ErrorCountCeiling: cfg.ErrorCountCeiling,
		OfflineFraction:   cfg.OfflineFraction,
		ReplyLatencyMs:    cfg.ReplyLatencyMs,
		GiveawayFailRate:  cfg.GiveawayFailRate,
		ProcessErrorCount: cfg.ProcessErrorCount,
	}, 0)

	provider, err := ai.NewProvider(cfg.AIProvider)
	if err != nil {
		log.Fatal(err)
	}

	registry := scenario.NewRegistry()
	if err := registry.LoadDir(cfg.ScenarioDir); err != nil {
		log.Printf("[WARN] Scenario dir: %v", err)
	}

	scen := scenario.NewEngine(provider)
	give := giveaway.NewEngine(tel)
	orch := dialogue.NewOrchestrator(scen, give, tel, cfg.ContextCap, cfg.HistoryWindow)

	mgr := fleet.NewManager(func(credentialRef string) (platform.Client, error) {
		client, err := platform.NewDiscordClient(filepath.Join(cfg.CredentialsDir, credentialRef))
		if err != nil {
			return nil, err
		}
		return client, nil
	}, cfg.HealthCheckInterval, cfg.ReconnectDelay, cfg.ReconnectAttempts)
	tel.SetStatusFunc(mgr.Counts)

	ctl := controls.NewService(mgr, store)

	accounts, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		log.Fatal(err)
	}
	for _, acc := range accounts {
		// persisted parameter sets win over the roster file
		if stored, ok, err := store.AccountConfig(acc.ID); err == nil && ok {
			stored.CredentialRef = acc.CredentialRef
			stored.ScenarioID = acc.ScenarioID
			acc = stored
		}
		if _, err := mgr.Register(acc.ID, acc.CredentialRef, acc); err != nil {
			log.Printf("[ERR] Account %s: %v", acc.ID, err)
			continue
		}
		if acc.ScenarioID != "" {
			sc, ok := registry.Get(acc.ScenarioID)
			if !ok {
				log.Printf("[ERR] Account %s references unknown scenario %q", acc.ID, acc.ScenarioID)
				continue
			}
			if err := orch.Initialize(acc.ID, sc, ""); err != nil {
				log.Printf("[ERR] Account %s scenario: %v", acc.ID, err)
			}
		}
	}

	assignRoles(accounts, registry, scen)

	mgr.StartAll()

	pool := fleet.NewPool(mgr, orch, tel)
	pool.SetResultSink(func(accountID string, res *giveaway.Result) {
		rec := storage.ParticipationRecord{
			AttemptID:  res.AttemptID,
			GiveawayID: res.GiveawayID,
			Success:    res.Success,
			AmountWon:  res.AmountWon,
			Reason:     res.Reason,
			At:         time.Now(),
		}
		if err := store.AppendParticipation(accountID, rec); err != nil {
			log.Printf("[ERR] Persist participation for %s: %v", accountID, err)
		}
	})
	pool.Start()

	go tel.StartSummaryLoop(ctx, 5*time.Minute)
	go alertLoop(ctx, tel, store)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

loop:
	for {
		select {
		case s := <-sig:
			if s == syscall.SIGHUP {
				reload(cfg, registry, ctl, orch)
				continue
			}
			log.Printf("[INFO] Received signal %s, shutting down...", s)
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	cancel()
	pool.Stop()
	mgr.StopAll()
	for _, acc := range accounts {
		orch.Shutdown(acc.ID)
	}
	log.Println("[INFO] Fleet exited cleanly")
}

// assignRoles computes one balanced role plan per scenario and exposes
// each account's character as a template variable.
func assignRoles(accounts []*config.AccountConfig, registry *scenario.Registry, scen *scenario.Engine) {
	byScenario := make(map[string][]string)
	for _, acc := range accounts {
		if acc.ScenarioID != "" {
			byScenario[acc.ScenarioID] = append(byScenario[acc.ScenarioID], acc.ID)
		}
	}
	for scenarioID, ids := range byScenario {
		sc, ok := registry.Get(scenarioID)
		if !ok {
			continue
		}
		plan, err := roles.CreatePlan(sc, ids, roles.ModeAuto, nil)
		if err != nil {
			log.Printf("[ERR] Role plan for %s: %v", scenarioID, err)
			continue
		}
		if ok, problems := roles.Validate(plan); !ok {
			for _, p := range problems {
				log.Printf("[WARN] Role plan %s: %s", scenarioID, p)
			}
		}
		for _, a := range plan.Assignments {
			scen.SetVariable(a.AccountID, "role", a.RoleID)
			log.Printf("[INFO] Scenario %s: role %q -> account %s", scenarioID, a.RoleID, a.AccountID)
		}
	}
}

// reload re-reads the scenario directory and the account roster, pushing
// parameter changes through the control surface and swapping scenarios
// in place with state preserved.
func reload(cfg *config.Config, registry *scenario.Registry, ctl *controls.Service, orch *dialogue.Orchestrator) {
	log.Println("[INFO] Reloading scenarios and account roster")
	if err := registry.LoadDir(cfg.ScenarioDir); err != nil {
		log.Printf("[ERR] Reload scenarios: %v", err)
	}
	accounts, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		log.Printf("[ERR] Reload roster: %v", err)
		return
	}
	for _, acc := range accounts {
		if err := ctl.SetParams(acc.ID, acc); err != nil {
			log.Printf("[ERR] Apply params for %s: %v", acc.ID, err)
		}
		if acc.ScenarioID == "" {
			continue
		}
		if sc, ok := registry.Get(acc.ScenarioID); ok {
			orch.HotUpdate(acc.ID, sc, true)
		}
	}
}

// alertLoop evaluates alert rules on a fixed cadence, preferring a
// persisted rule set over the built-in defaults.
func alertLoop(ctx context.Context, tel *telemetry.Service, store *storage.Store) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rules, ok, err := store.AlertRules()
			if err != nil {
				log.Printf("[ERR] Load alert rules: %v", err)
			}
			if !ok {
				rules = nil // CheckAlerts falls back to defaults
			}
			for _, a := range tel.CheckAlerts(rules) {
				log.Printf("[%s] Alert %s: %s", a.Severity, a.Type, a.Message)
			}
		}
	}
}
