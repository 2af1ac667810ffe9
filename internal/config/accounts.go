package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// rosterEntry is the on-disk shape of one account. Durations are written
// as strings ("30s", "2m") and parsed explicitly. Numeric overrides are
// pointers so an explicit zero (reply_rate: 0) is distinguishable from
// an omitted key that should keep its default.
type rosterEntry struct {
	ID            string   `yaml:"id"`
	CredentialRef string   `yaml:"credential_ref"`
	ScenarioID    string   `yaml:"scenario_id"`
	Conversations []string `yaml:"conversations"`

	ReplyRate        *float64 `yaml:"reply_rate"`
	HourlyReplyCap   *int     `yaml:"hourly_reply_cap"`
	MinReplyInterval string   `yaml:"min_reply_interval"`

	GiveawayEnabled     bool     `yaml:"giveaway_enabled"`
	GiveawayProbability *float64 `yaml:"giveaway_probability"`
	GiveawayMinAmount   *float64 `yaml:"giveaway_min_amount"`
	GiveawayCooldown    string   `yaml:"giveaway_cooldown"`
	GiveawayHourlyCap   *int     `yaml:"giveaway_hourly_cap"`

	ActiveFromHour int `yaml:"active_from_hour"`
	ActiveToHour   int `yaml:"active_to_hour"`

	KeywordAllow []string `yaml:"keyword_allow"`
	KeywordDeny  []string `yaml:"keyword_deny"`

	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`

	Overrides map[string]string `yaml:"overrides"`
}

type accountsFile struct {
	Accounts []rosterEntry `yaml:"accounts"`
}

// LoadAccounts reads the account roster from a YAML file. Every entry
// gets defaults filled in and is normalized; entries without an id or
// credential reference are rejected.
func LoadAccounts(path string) ([]*AccountConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var file accountsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Accounts))
	out := make([]*AccountConfig, 0, len(file.Accounts))
	for i, e := range file.Accounts {
		if e.ID == "" {
			return nil, fmt.Errorf("accounts file %s: entry %d has no id", path, i)
		}
		if e.CredentialRef == "" {
			return nil, fmt.Errorf("accounts file %s: account %s has no credential_ref", path, e.ID)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("accounts file %s: duplicate account id %s", path, e.ID)
		}
		seen[e.ID] = true

		cfg := DefaultAccountConfig(e.ID)
		cfg.CredentialRef = e.CredentialRef
		cfg.ScenarioID = e.ScenarioID
		cfg.Conversations = e.Conversations
		if e.ReplyRate != nil {
			cfg.ReplyRate = *e.ReplyRate
		}
		if e.HourlyReplyCap != nil {
			cfg.HourlyReplyCap = *e.HourlyReplyCap
		}
		if e.MinReplyInterval != "" {
			d, err := time.ParseDuration(e.MinReplyInterval)
			if err != nil {
				return nil, fmt.Errorf("accounts file %s: account %s min_reply_interval: %w", path, e.ID, err)
			}
			cfg.MinReplyInterval = d
		}
		cfg.GiveawayEnabled = e.GiveawayEnabled
		if e.GiveawayProbability != nil {
			cfg.GiveawayProbability = *e.GiveawayProbability
		}
		if e.GiveawayMinAmount != nil {
			cfg.GiveawayMinAmount = *e.GiveawayMinAmount
		}
		if e.GiveawayCooldown != "" {
			d, err := time.ParseDuration(e.GiveawayCooldown)
			if err != nil {
				return nil, fmt.Errorf("accounts file %s: account %s giveaway_cooldown: %w", path, e.ID, err)
			}
			cfg.GiveawayCooldown = d
		}
		if e.GiveawayHourlyCap != nil {
			cfg.GiveawayHourlyCap = *e.GiveawayHourlyCap
		}
		cfg.ActiveFromHour = e.ActiveFromHour
		cfg.ActiveToHour = e.ActiveToHour
		cfg.KeywordAllow = e.KeywordAllow
		cfg.KeywordDeny = e.KeywordDeny
		if e.Temperature != nil {
			cfg.Temperature = *e.Temperature
		}
		if e.MaxTokens != nil {
			cfg.MaxTokens = *e.MaxTokens
		}
		cfg.Overrides = e.Overrides
		cfg.Normalize()
		out = append(out, cfg)
	}
	return out, nil
}
