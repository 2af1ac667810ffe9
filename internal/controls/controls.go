// Package controls is the configuration surface the operator-facing
// layer calls into: read and write per-account parameters, singly or in
// batch, with a fallback chain so a caller can always render a view.
package controls

import (
	"context"
	"fmt"
	"sync"

	"github.com/keshon/troupe/internal/config"
	"github.com/keshon/troupe/pkg/util"
)

// LiveSource exposes the live copies held by the running fleet.
// The fleet manager satisfies it; tests use a map-backed fake.
type LiveSource interface {
	AccountConfig(id string) (*config.AccountConfig, bool)
	SetAccountConfig(id string, cfg *config.AccountConfig) bool
}

// Persister stores parameter sets across restarts.
type Persister interface {
	AccountConfig(id string) (*config.AccountConfig, bool, error)
	SetAccountConfig(id string, cfg *config.AccountConfig) error
}

// Service resolves and updates account parameters.
type Service struct {
	mu    sync.Mutex
	live  LiveSource
	store Persister
}

// NewService wires the control surface. Either dependency may be nil:
// without a live source updates only persist, without a persister they
// only apply to the running fleet.
func NewService(live LiveSource, store Persister) *Service {
	return &Service{live: live, store: store}
}

// EffectiveParams resolves the parameters in effect for an account:
// the live copy first, then the persisted copy, then hard defaults.
// Never fails for an unknown id.
func (s *Service) EffectiveParams(id string) *config.AccountConfig {
	if s.live != nil {
		if cfg, ok := s.live.AccountConfig(id); ok {
			return cfg
		}
	}
	if s.store != nil {
		if cfg, ok, err := s.store.AccountConfig(id); err == nil && ok {
			cfg.Normalize()
			return cfg
		}
	}
	return config.DefaultAccountConfig(id)
}

// SetParams normalizes, persists, and pushes one account's parameters.
func (s *Service) SetParams(id string, cfg *config.AccountConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cfg.Clone()
	next.ID = id
	next.Normalize()

	if s.store != nil {
		if err := s.store.SetAccountConfig(id, next); err != nil {
			return fmt.Errorf("persist params for %s: %w", id, err)
		}
	}
	if s.live != nil {
		s.live.SetAccountConfig(id, next)
	}
	return nil
}

// Update applies a partial mutation to one account's effective params.
func (s *Service) Update(id string, mutate func(*config.AccountConfig)) error {
	cfg := s.EffectiveParams(id)
	mutate(cfg)
	return s.SetParams(id, cfg)
}

// BatchResult reports one account's outcome in a batch call.
type BatchResult struct {
	AccountID string
	Err       error
}

// SetParamsBatch applies the same mutation to several accounts with
// bounded parallelism. Per-account failures are collected, not fatal.
func (s *Service) SetParamsBatch(ids []string, mutate func(*config.AccountConfig)) []BatchResult {
	var mu sync.Mutex
	results := make([]BatchResult, 0, len(ids))

	_ = util.Parallel(ids, 4, func(_ context.Context, id string) error {
		err := s.Update(id, mutate)
		mu.Lock()
		results = append(results, BatchResult{AccountID: id, Err: err})
		mu.Unlock()
		return nil
	})
	return results
}

// EffectiveParamsBatch resolves parameters for several accounts.
func (s *Service) EffectiveParamsBatch(ids []string) map[string]*config.AccountConfig {
	out := make(map[string]*config.AccountConfig, len(ids))
	for _, id := range ids {
		out[id] = s.EffectiveParams(id)
	}
	return out
}
