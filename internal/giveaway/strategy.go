package giveaway

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/keshon/troupe/internal/config"
)

// AccountState is the per-account snapshot strategies decide against.
type AccountState struct {
	LastParticipation time.Time
	HourCount         int // participations in the trailing hour
}

// Strategy is one independent eligibility check. Strategies compose with
// AllOf and know nothing about the scenario engine.
type Strategy interface {
	Allow(info *Info, cfg *config.AccountConfig, st AccountState, now time.Time) (bool, string)
}

// MinAmount skips giveaways below the configured floor.
type MinAmount struct{}

func (MinAmount) Allow(info *Info, cfg *config.AccountConfig, _ AccountState, _ time.Time) (bool, string) {
	if cfg.GiveawayMinAmount > 0 && info.Amount > 0 && info.Amount < cfg.GiveawayMinAmount {
		return false, fmt.Sprintf("amount %.2f below floor %.2f", info.Amount, cfg.GiveawayMinAmount)
	}
	return true, ""
}

// Cooldown enforces a quiet period after each participation.
type Cooldown struct{}

func (Cooldown) Allow(_ *Info, cfg *config.AccountConfig, st AccountState, now time.Time) (bool, string) {
	if cfg.GiveawayCooldown > 0 && !st.LastParticipation.IsZero() &&
		now.Sub(st.LastParticipation) < cfg.GiveawayCooldown {
		return false, "cooldown not elapsed"
	}
	return true, ""
}

// HourlyCap bounds participations per trailing hour.
type HourlyCap struct{}

func (HourlyCap) Allow(_ *Info, cfg *config.AccountConfig, st AccountState, _ time.Time) (bool, string) {
	if cfg.GiveawayHourlyCap > 0 && st.HourCount >= cfg.GiveawayHourlyCap {
		return false, fmt.Sprintf("hourly cap %d reached", cfg.GiveawayHourlyCap)
	}
	return true, ""
}

// RandomMiss declines an otherwise eligible giveaway with probability
// 1-GiveawayProbability, imitating imperfect human attention.
type RandomMiss struct{}

func (RandomMiss) Allow(_ *Info, cfg *config.AccountConfig, _ AccountState, _ time.Time) (bool, string) {
	p := cfg.GiveawayProbability
	if p <= 0 {
		return false, "participation probability is zero"
	}
	if p < 1 && rand.Float64() >= p {
		return false, "simulated miss"
	}
	return true, ""
}

// AllOf passes only when every inner strategy passes; the first refusal
// wins and its reason is returned.
type AllOf []Strategy

func (a AllOf) Allow(info *Info, cfg *config.AccountConfig, st AccountState, now time.Time) (bool, string) {
	for _, s := range a {
		if ok, reason := s.Allow(info, cfg, st, now); !ok {
			return false, reason
		}
	}
	return true, ""
}

// DefaultStrategy is the stack used when no custom composition is supplied.
func DefaultStrategy() Strategy {
	return AllOf{MinAmount{}, Cooldown{}, HourlyCap{}, RandomMiss{}}
}
