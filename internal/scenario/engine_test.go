package scenario

import (
	"errors"
	"testing"

	"github.com/keshon/troupe/internal/ai"
)

// scriptedProvider returns a fixed reply or error.
type scriptedProvider struct {
	reply string
	err   error
}

func (p *scriptedProvider) Generate(_ []ai.Message, _ ai.Options) (string, error) {
	return p.reply, p.err
}

func greeterScenario() *Scenario {
	s, issues, err := Load([]byte(canonicalDoc))
	if err != nil || len(issues) != 0 {
		panic("fixture scenario must be valid")
	}
	return s
}

func TestProcessMessageTemplateReply(t *testing.T) {
	e := NewEngine(nil)
	if err := e.LoadAccount("acc1", greeterScenario(), ""); err != nil {
		t.Fatalf("load account: %v", err)
	}

	reply, err := e.ProcessMessage("acc1", Message{ConversationID: "c1", Text: "hello"}, nil, ai.Options{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("reply = %q, want %q", reply, "hi there")
	}
	if cur, _ := e.CurrentScene("acc1"); cur != "chatting" {
		t.Fatalf("scene after reply = %q, want chatting", cur)
	}
	if hist := e.SceneHistory("acc1"); len(hist) != 1 || hist[0] != "opening" {
		t.Fatalf("history = %v", hist)
	}
}

func TestProcessMessageNoTriggerMatch(t *testing.T) {
	e := NewEngine(nil)
	if err := e.LoadAccount("acc1", greeterScenario(), ""); err != nil {
		t.Fatalf("load account: %v", err)
	}
	reply, err := e.ProcessMessage("acc1", Message{ConversationID: "c1", Text: "unrelated"}, nil, ai.Options{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "" {
		t.Fatalf("unmatched message produced reply %q", reply)
	}
	if cur, _ := e.CurrentScene("acc1"); cur != "opening" {
		t.Fatalf("scene moved without a match: %q", cur)
	}
}

func TestProcessMessageUnknownAccount(t *testing.T) {
	e := NewEngine(nil)
	if _, err := e.ProcessMessage("ghost", Message{Text: "hello"}, nil, ai.Options{}); err == nil {
		t.Fatalf("expected error for account without a scenario")
	}
}

func TestGenerationFailureFallsBackToTemplate(t *testing.T) {
	s := &Scenario{
		ID: "gen",
		Scenes: []Scene{{
			ID:        "only",
			Triggers:  []Trigger{{Kind: TriggerKeyword, Keywords: []string{"hi"}}},
			Responses: []Response{{Template: "scripted line", AI: true}},
		}},
	}
	e := NewEngine(&scriptedProvider{err: errors.New("provider down")})
	if err := e.LoadAccount("acc1", s, ""); err != nil {
		t.Fatalf("load account: %v", err)
	}
	reply, err := e.ProcessMessage("acc1", Message{ConversationID: "c1", Text: "hi"}, nil, ai.Options{})
	if err != nil {
		t.Fatalf("generation failure must not surface: %v", err)
	}
	if reply != "scripted line" {
		t.Fatalf("reply = %q, want template fallback", reply)
	}
}

func TestGenerationReplacesTemplate(t *testing.T) {
	s := &Scenario{
		ID: "gen",
		Scenes: []Scene{{
			ID:        "only",
			Triggers:  []Trigger{{Kind: TriggerKeyword, Keywords: []string{"hi"}}},
			Responses: []Response{{Template: "scripted line", AI: true}},
		}},
	}
	e := NewEngine(&scriptedProvider{reply: "  improvised line \n"})
	if err := e.LoadAccount("acc1", s, ""); err != nil {
		t.Fatalf("load account: %v", err)
	}
	reply, err := e.ProcessMessage("acc1", Message{ConversationID: "c1", Text: "hi"}, nil, ai.Options{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "improvised line" {
		t.Fatalf("reply = %q, want trimmed generated text", reply)
	}
}

func TestVariableSubstitution(t *testing.T) {
	s := &Scenario{
		ID: "vars",
		Scenes: []Scene{{
			ID:        "only",
			Triggers:  []Trigger{{Kind: TriggerKeyword, Keywords: []string{"who"}}},
			Responses: []Response{{Template: "I am {role}, hello {sender}"}},
		}},
	}
	e := NewEngine(nil)
	if err := e.LoadAccount("acc1", s, ""); err != nil {
		t.Fatalf("load account: %v", err)
	}
	e.SetVariable("acc1", "role", "the host")

	reply, err := e.ProcessMessage("acc1", Message{ConversationID: "c1", SenderName: "Ann", Text: "who are you"}, nil, ai.Options{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "I am the host, hello Ann" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestTransitionScene(t *testing.T) {
	e := NewEngine(nil)
	if err := e.LoadAccount("acc1", greeterScenario(), ""); err != nil {
		t.Fatalf("load account: %v", err)
	}
	if e.TransitionScene("acc1", "nowhere") {
		t.Fatalf("transition to unknown scene must fail")
	}
	if !e.TransitionScene("acc1", "chatting") {
		t.Fatalf("transition to known scene failed")
	}
	if cur, _ := e.CurrentScene("acc1"); cur != "chatting" {
		t.Fatalf("scene = %q", cur)
	}
}

func TestHotUpdatePreservesState(t *testing.T) {
	e := NewEngine(nil)
	if err := e.LoadAccount("acc1", greeterScenario(), ""); err != nil {
		t.Fatalf("load account: %v", err)
	}
	e.SetVariable("acc1", "mood", "cheerful")
	if !e.TransitionScene("acc1", "chatting") {
		t.Fatalf("transition failed")
	}

	// v2 still contains the current scene, so state survives
	v2 := greeterScenario()
	v2.Version = "3"
	if !e.HotUpdate("acc1", v2, true) {
		t.Fatalf("hot update refused")
	}
	if cur, _ := e.CurrentScene("acc1"); cur != "chatting" {
		t.Fatalf("current scene lost on preserve update: %q", cur)
	}
	if v, ok := e.Variable("acc1", "mood"); !ok || v != "cheerful" {
		t.Fatalf("variable lost on preserve update: %q %v", v, ok)
	}
}

func TestHotUpdateMissingSceneRestartsAtFirst(t *testing.T) {
	e := NewEngine(nil)
	if err := e.LoadAccount("acc1", greeterScenario(), "chatting"); err != nil {
		t.Fatalf("load account: %v", err)
	}
	next := &Scenario{
		ID: "greeter",
		Scenes: []Scene{{
			ID:        "fresh",
			Triggers:  []Trigger{{Kind: TriggerLength, MinLen: 1}},
			Responses: []Response{{Template: "hi"}},
		}},
	}
	if !e.HotUpdate("acc1", next, true) {
		t.Fatalf("hot update refused")
	}
	if cur, _ := e.CurrentScene("acc1"); cur != "fresh" {
		t.Fatalf("expected restart at first scene, got %q", cur)
	}
	// preserve was requested, so variables stay even though the scene reset
	e.SetVariable("acc1", "k", "v")
	if !e.HotUpdate("acc1", next, false) {
		t.Fatalf("hot update refused")
	}
	if _, ok := e.Variable("acc1", "k"); ok {
		t.Fatalf("variables must reset without preserve")
	}
}
