// Package scenario implements the scripted-dialogue state machine: scenes,
// triggers, response selection, variable substitution and scene transitions.
// It performs no I/O of its own beyond optional generative-reply calls.
package scenario

import "strings"

// TriggerKind enumerates the closed set of trigger variants.
type TriggerKind string

const (
	TriggerKeyword   TriggerKind = "keyword"
	TriggerLength    TriggerKind = "length"
	TriggerNewMember TriggerKind = "new_member"
	TriggerGiveaway  TriggerKind = "giveaway"
)

// KnownTriggerKind reports whether k is one of the supported kinds.
func KnownTriggerKind(k TriggerKind) bool {
	switch k {
	case TriggerKeyword, TriggerLength, TriggerNewMember, TriggerGiveaway:
		return true
	}
	return false
}

// Trigger is one condition in a scene's ordered trigger list. Only the
// fields valid for Kind are populated; unknown kinds are rejected at load.
type Trigger struct {
	Kind     TriggerKind `yaml:"type"`
	Keywords []string    `yaml:"keywords,omitempty"` // keyword
	MinLen   int         `yaml:"min_len,omitempty"`  // length
	MaxLen   int         `yaml:"max_len,omitempty"`  // length
}

// Message is the engine's view of one inbound event.
type Message struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Text           string
	NewMember      bool
	Giveaway       bool
}

// Matches reports whether the trigger fires for msg.
func (t Trigger) Matches(msg Message) bool {
	switch t.Kind {
	case TriggerKeyword:
		text := strings.ToLower(msg.Text)
		for _, kw := range t.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	case TriggerLength:
		n := len([]rune(msg.Text))
		if t.MinLen > 0 && n < t.MinLen {
			return false
		}
		if t.MaxLen > 0 && n > t.MaxLen {
			return false
		}
		return msg.Text != ""
	case TriggerNewMember:
		return msg.NewMember
	case TriggerGiveaway:
		return msg.Giveaway
	}
	return false
}

// Response is one candidate reply in a scene.
type Response struct {
	Template string            `yaml:"template"`
	AI       bool              `yaml:"ai,omitempty"` // complete via the generation provider
	Role     string            `yaml:"role,omitempty"`
	Meta     map[string]string `yaml:"meta,omitempty"`
}

// Scene is one node of the scenario state machine.
type Scene struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description,omitempty"`
	Triggers    []Trigger         `yaml:"triggers"`
	Responses   []Response        `yaml:"responses"`
	NextScene   string            `yaml:"next_scene,omitempty"`
	Meta        map[string]string `yaml:"metadata,omitempty"`
}

// Scenario is a versioned, immutable dialogue plan. Replaced wholesale on
// hot update, never mutated in place.
type Scenario struct {
	ID      string            `yaml:"scenario_id"`
	Version string            `yaml:"version"`
	Meta    map[string]string `yaml:"metadata,omitempty"`
	Scenes  []Scene           `yaml:"scenes"`
}

// Scene returns the scene with the given id, or nil.
func (s *Scenario) Scene(id string) *Scene {
	for i := range s.Scenes {
		if s.Scenes[i].ID == id {
			return &s.Scenes[i]
		}
	}
	return nil
}

// FirstSceneID returns the id of the first scene, or "".
func (s *Scenario) FirstSceneID() string {
	if len(s.Scenes) == 0 {
		return ""
	}
	return s.Scenes[0].ID
}
