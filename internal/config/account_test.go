package config

import (
	"testing"
	"time"
)

func TestNormalizeClamps(t *testing.T) {
	cfg := &AccountConfig{ReplyRate: 1.7, GiveawayProbability: -0.2, HourlyReplyCap: -3, GiveawayHourlyCap: -1}
	cfg.Normalize()
	if cfg.ReplyRate != 1 || cfg.GiveawayProbability != 0 {
		t.Fatalf("probabilities not clamped: %+v", cfg)
	}
	if cfg.HourlyReplyCap != 0 || cfg.GiveawayHourlyCap != 0 {
		t.Fatalf("caps not clamped: %+v", cfg)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultAccountConfig("acc1")
	cfg.Conversations = []string{"c1"}
	cfg.Overrides = map[string]string{"k": "v"}

	clone := cfg.Clone()
	clone.Conversations[0] = "other"
	clone.Overrides["k"] = "changed"

	if cfg.Conversations[0] != "c1" || cfg.Overrides["k"] != "v" {
		t.Fatalf("clone shares memory with the original: %+v", cfg)
	}
}

func TestInActiveWindow(t *testing.T) {
	at := func(h int) time.Time {
		return time.Date(2026, 3, 10, h, 30, 0, 0, time.UTC)
	}

	always := &AccountConfig{}
	if !always.InActiveWindow(at(3)) {
		t.Fatalf("zero window must mean always on")
	}

	day := &AccountConfig{ActiveFromHour: 9, ActiveToHour: 18}
	if !day.InActiveWindow(at(9)) || !day.InActiveWindow(at(17)) {
		t.Fatalf("in-window hour refused")
	}
	if day.InActiveWindow(at(8)) || day.InActiveWindow(at(18)) {
		t.Fatalf("window end must be exclusive")
	}

	night := &AccountConfig{ActiveFromHour: 22, ActiveToHour: 6}
	if !night.InActiveWindow(at(23)) || !night.InActiveWindow(at(2)) {
		t.Fatalf("midnight wrap broken")
	}
	if night.InActiveWindow(at(12)) {
		t.Fatalf("midday inside a night window")
	}
}
