// Package storage persists the fleet's operational state: per-account
// parameter overrides, alert rule sets, and giveaway participation
// records that must survive a restart.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keshon/troupe/datastore"
	"github.com/keshon/troupe/internal/config"
	"github.com/keshon/troupe/internal/telemetry"
)

const participationHistoryLimit = 200

// ParticipationRecord is one persisted giveaway attempt.
type ParticipationRecord struct {
	AttemptID  string    `json:"attempt_id"`
	GiveawayID string    `json:"giveaway_id"`
	Success    bool      `json:"success"`
	AmountWon  float64   `json:"amount_won"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// accountRecord is everything stored under one account key.
type accountRecord struct {
	Config         *config.AccountConfig `json:"config,omitempty"`
	Participations []ParticipationRecord `json:"participations,omitempty"`
}

// rulesRecord is the persisted alert rule set.
type rulesRecord struct {
	Rules []telemetry.Rule `json:"rules"`
}

// Store wraps the JSON datastore with typed accessors.
type Store struct {
	ds *datastore.DataStore
}

// New opens (or creates) the store at filePath.
func New(filePath string) (*Store, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Store{ds: ds}, nil
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	return s.ds.Close()
}

func accountKey(id string) string { return "account:" + id }

// getAccountRecord decodes the stored blob for one account. Missing keys
// yield an empty record.
func (s *Store) getAccountRecord(id string) (*accountRecord, error) {
	data, exists := s.ds.Get(accountKey(id))
	if !exists {
		return &accountRecord{}, nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal stored account %s: %w", id, err)
	}
	var rec accountRecord
	if err := json.Unmarshal(jsonData, &rec); err != nil {
		return nil, fmt.Errorf("decode stored account %s: %w", id, err)
	}
	return &rec, nil
}

// SetAccountConfig persists one account's parameter set.
func (s *Store) SetAccountConfig(id string, cfg *config.AccountConfig) error {
	rec, err := s.getAccountRecord(id)
	if err != nil {
		return err
	}
	rec.Config = cfg.Clone()
	s.ds.Add(accountKey(id), rec)
	return nil
}

// AccountConfig loads one account's persisted parameter set.
// ok is false when nothing was ever stored for the account.
func (s *Store) AccountConfig(id string) (*config.AccountConfig, bool, error) {
	rec, err := s.getAccountRecord(id)
	if err != nil {
		return nil, false, err
	}
	if rec.Config == nil {
		return nil, false, nil
	}
	return rec.Config.Clone(), true, nil
}

// AppendParticipation records one giveaway attempt for the account,
// trimming old records past the history limit.
func (s *Store) AppendParticipation(id string, p ParticipationRecord) error {
	rec, err := s.getAccountRecord(id)
	if err != nil {
		return err
	}
	rec.Participations = append(rec.Participations, p)
	if len(rec.Participations) > participationHistoryLimit {
		rec.Participations = rec.Participations[len(rec.Participations)-participationHistoryLimit:]
	}
	s.ds.Add(accountKey(id), rec)
	return nil
}

// Participations returns the account's persisted giveaway attempts.
func (s *Store) Participations(id string) ([]ParticipationRecord, error) {
	rec, err := s.getAccountRecord(id)
	if err != nil {
		return nil, err
	}
	return rec.Participations, nil
}

// SetAlertRules replaces the persisted alert rule set.
func (s *Store) SetAlertRules(rules []telemetry.Rule) error {
	s.ds.Add("alert_rules", &rulesRecord{Rules: rules})
	return nil
}

// AlertRules loads the persisted alert rule set. ok is false when no
// custom rules were ever stored (callers fall back to defaults).
func (s *Store) AlertRules() ([]telemetry.Rule, bool, error) {
	data, exists := s.ds.Get("alert_rules")
	if !exists {
		return nil, false, nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, false, fmt.Errorf("marshal stored alert rules: %w", err)
	}
	var rec rulesRecord
	if err := json.Unmarshal(jsonData, &rec); err != nil {
		return nil, false, fmt.Errorf("decode stored alert rules: %w", err)
	}
	return rec.Rules, true, nil
}

// Flush forces a save to disk.
func (s *Store) Flush() error {
	return s.ds.SaveToFile()
}
