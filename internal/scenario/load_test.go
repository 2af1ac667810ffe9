package scenario

import (
	"bytes"
	"testing"
)

const canonicalDoc = `
scenario_id: greeter
version: 2
scenes:
  - id: opening
    triggers:
      - type: keyword
        keywords: [hello, hey]
    responses:
      - template: hi there
    next_scene: chatting
  - id: chatting
    triggers:
      - type: length
        min_len: 1
    responses:
      - template: "tell me more, {sender}"
`

func TestLoadCanonical(t *testing.T) {
	s, issues, err := Load([]byte(canonicalDoc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected clean document, got issues: %v", issues)
	}
	if s.ID != "greeter" {
		t.Fatalf("scenario id = %q", s.ID)
	}
	if s.Version != "2" {
		t.Fatalf("numeric version should decode as string, got %q", s.Version)
	}
	if len(s.Scenes) != 2 || s.FirstSceneID() != "opening" {
		t.Fatalf("unexpected scenes: %+v", s.Scenes)
	}
	if s.Scenes[0].NextScene != "chatting" {
		t.Fatalf("next_scene = %q", s.Scenes[0].NextScene)
	}
}

func TestLoadStepsLayout(t *testing.T) {
	doc := `
scenario_id: stepper
steps:
  - trigger: "hello, hi"
    reply: welcome
  - trigger: [thanks, thx]
    reply: any time
    ai: true
  - reply: see you
`
	s, issues, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("issues: %v", issues)
	}
	if len(s.Scenes) != 3 {
		t.Fatalf("expected 3 chained scenes, got %d", len(s.Scenes))
	}
	if s.Scenes[0].ID != "step_1" || s.Scenes[0].NextScene != "step_2" {
		t.Fatalf("step chain broken: %+v", s.Scenes[0])
	}
	if got := s.Scenes[0].Triggers[0].Keywords; len(got) != 2 || got[0] != "hello" {
		t.Fatalf("comma split keywords = %v", got)
	}
	if !s.Scenes[1].Responses[0].AI {
		t.Fatalf("ai flag lost in step 2")
	}
	// trailing step without a trigger fires on any non-empty message
	last := s.Scenes[2]
	if last.Triggers[0].Kind != TriggerLength || last.Triggers[0].MinLen != 1 {
		t.Fatalf("trigger-less step = %+v", last.Triggers[0])
	}
	if last.NextScene != "" {
		t.Fatalf("last step should not chain, got %q", last.NextScene)
	}
}

func TestLoadDialogueLayout(t *testing.T) {
	doc := `
scenario_id: chitchat
dialogue: |
  guest: good evening everyone
  host: welcome in, grab a seat
  guest: what are we playing tonight
  host: cards, as always
`
	s, issues, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("issues: %v", issues)
	}
	if len(s.Scenes) != 2 {
		t.Fatalf("expected 2 cue/reply scenes, got %d", len(s.Scenes))
	}
	first := s.Scenes[0]
	if first.ID != "line_1" || first.NextScene != "line_2" {
		t.Fatalf("line chain broken: %+v", first)
	}
	if first.Responses[0].Template != "welcome in, grab a seat" {
		t.Fatalf("reply template = %q", first.Responses[0].Template)
	}
	if first.Responses[0].Role != "host" {
		t.Fatalf("speaker should become role, got %q", first.Responses[0].Role)
	}
	if len(first.Triggers[0].Keywords) == 0 {
		t.Fatalf("cue line produced no keywords")
	}
}

func TestLoadRejectsUnknownLayout(t *testing.T) {
	if _, _, err := Load([]byte("scenario_id: x\n")); err == nil {
		t.Fatalf("document without scenes/steps/dialogue should fail")
	}
	if _, _, err := Load([]byte("")); err == nil {
		t.Fatalf("empty document should fail")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := Normalize([]byte(canonicalDoc))
	if err != nil {
		t.Fatalf("first normalize: %v", err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if !bytes.Equal(once, twice) {
		t.Fatalf("normalize not idempotent:\n--- once ---\n%s\n--- twice ---\n%s", once, twice)
	}
}

func TestNormalizeConvertsLegacyToCanonical(t *testing.T) {
	legacy := []byte("scenario_id: stepper\nsteps:\n  - trigger: hello\n    reply: hi\n")
	out, err := Normalize(legacy)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	s, issues, err := Load(out)
	if err != nil || len(issues) != 0 {
		t.Fatalf("canonical output must reload cleanly: err=%v issues=%v", err, issues)
	}
	if s.Scenes[0].ID != "step_1" {
		t.Fatalf("canonical form lost the normalized scene: %+v", s.Scenes)
	}
}
