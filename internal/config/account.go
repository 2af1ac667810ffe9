package config

import "time"

// AccountConfig is the declarative policy for one automated account.
// Mutated live through the control surface; readers receive copies.
type AccountConfig struct {
	ID            string   `json:"id"`
	CredentialRef string   `json:"credential_ref"` // token file under CredentialsDir
	ScenarioID    string   `json:"scenario_id"`
	Conversations []string `json:"conversations"` // allowlist; empty = all group conversations

	ReplyRate        float64       `json:"reply_rate"`         // 0..1 probability of replying
	HourlyReplyCap   int           `json:"hourly_reply_cap"`   // max replies per rolling hour
	MinReplyInterval time.Duration `json:"min_reply_interval"` // floor between two replies

	GiveawayEnabled     bool          `json:"giveaway_enabled"`
	GiveawayProbability float64       `json:"giveaway_probability"` // chance to join an eligible giveaway
	GiveawayMinAmount   float64       `json:"giveaway_min_amount"`
	GiveawayCooldown    time.Duration `json:"giveaway_cooldown"`
	GiveawayHourlyCap   int           `json:"giveaway_hourly_cap"`

	// Active window in local hours [From, To); zero values mean always on.
	ActiveFromHour int `json:"active_from_hour"`
	ActiveToHour   int `json:"active_to_hour"`

	KeywordAllow []string `json:"keyword_allow"`
	KeywordDeny  []string `json:"keyword_deny"`

	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`

	Overrides map[string]string `json:"overrides,omitempty"`
}

// DefaultAccountConfig returns the hard-coded fallback used when neither a
// live nor a persisted config exists for an account.
func DefaultAccountConfig(id string) *AccountConfig {
	return &AccountConfig{
		ID:                  id,
		ReplyRate:           0.8,
		HourlyReplyCap:      30,
		MinReplyInterval:    15 * time.Second,
		GiveawayProbability: 0.7,
		GiveawayCooldown:    2 * time.Minute,
		GiveawayHourlyCap:   10,
		Temperature:         0.9,
		MaxTokens:           400,
	}
}

// Normalize clamps fields into valid ranges. Call after any external mutation.
func (c *AccountConfig) Normalize() {
	if c.ReplyRate < 0 {
		c.ReplyRate = 0
	}
	if c.ReplyRate > 1 {
		c.ReplyRate = 1
	}
	if c.GiveawayProbability < 0 {
		c.GiveawayProbability = 0
	}
	if c.GiveawayProbability > 1 {
		c.GiveawayProbability = 1
	}
	if c.HourlyReplyCap < 0 {
		c.HourlyReplyCap = 0
	}
	if c.GiveawayHourlyCap < 0 {
		c.GiveawayHourlyCap = 0
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c *AccountConfig) Clone() *AccountConfig {
	out := *c
	out.Conversations = append([]string(nil), c.Conversations...)
	out.KeywordAllow = append([]string(nil), c.KeywordAllow...)
	out.KeywordDeny = append([]string(nil), c.KeywordDeny...)
	if c.Overrides != nil {
		out.Overrides = make(map[string]string, len(c.Overrides))
		for k, v := range c.Overrides {
			out.Overrides[k] = v
		}
	}
	return &out
}

// InActiveWindow reports whether t falls inside the account's active hours.
func (c *AccountConfig) InActiveWindow(t time.Time) bool {
	if c.ActiveFromHour == 0 && c.ActiveToHour == 0 {
		return true
	}
	h := t.Hour()
	if c.ActiveFromHour <= c.ActiveToHour {
		return h >= c.ActiveFromHour && h < c.ActiveToHour
	}
	// window wraps midnight
	return h >= c.ActiveFromHour || h < c.ActiveToHour
}
