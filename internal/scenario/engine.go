package scenario

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/keshon/troupe/internal/ai"
)

// binding is one account's live instance of a scenario.
type binding struct {
	mu       sync.Mutex
	scenario *Scenario
	current  string
	history  []string
	vars     map[string]string
}

// Engine evaluates scenarios for registered accounts. All account-facing
// methods are safe for concurrent use; processing for a single account is
// serialized by its binding.
type Engine struct {
	mu       sync.RWMutex
	bindings map[string]*binding
	provider ai.Provider // may be nil; generative responses fall back to templates
	selector Selector
	strict   bool // refuse to repeat a recent reply instead of reusing one
}

// NewEngine creates an engine. provider may be nil.
func NewEngine(provider ai.Provider) *Engine {
	return &Engine{
		bindings: make(map[string]*binding),
		provider: provider,
		selector: NewRecentSelector(0, 0),
	}
}

// SetSelector replaces the response selector (tests, alternative policies).
func (e *Engine) SetSelector(sel Selector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selector = sel
}

// SetStrictDedup makes Select refuse rather than repeat a recent reply.
func (e *Engine) SetStrictDedup(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strict = v
}

// LoadAccount binds an account to a scenario, starting at initialScene or
// the scenario's first scene. The scenario must already be validated.
func (e *Engine) LoadAccount(accountID string, s *Scenario, initialScene string) error {
	if s == nil || len(s.Scenes) == 0 {
		return fmt.Errorf("load account %s: empty scenario", accountID)
	}
	start := initialScene
	if start == "" {
		start = s.FirstSceneID()
	}
	if s.Scene(start) == nil {
		return fmt.Errorf("load account %s: scene %q not in scenario %s", accountID, start, s.ID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[accountID] = &binding{
		scenario: s,
		current:  start,
		vars:     make(map[string]string),
	}
	return nil
}

// UnloadAccount drops the account's binding.
func (e *Engine) UnloadAccount(accountID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.bindings, accountID)
}

// CurrentScene returns the account's current scene id.
func (e *Engine) CurrentScene(accountID string) (string, bool) {
	b := e.binding(accountID)
	if b == nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, true
}

// SceneHistory returns the account's visited scene ids, oldest first.
func (e *Engine) SceneHistory(accountID string) []string {
	b := e.binding(accountID)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.history...)
}

// SetVariable stores a value in the account's variable bag.
func (e *Engine) SetVariable(accountID, key, value string) {
	b := e.binding(accountID)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vars[key] = value
}

// Variable reads a value from the account's variable bag.
func (e *Engine) Variable(accountID, key string) (string, bool) {
	b := e.binding(accountID)
	if b == nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.vars[key]
	return v, ok
}

// ProcessMessage matches msg against the account's current scene and
// produces a reply, or "" when no trigger matches. history is the bounded
// conversation window used for generative completion.
func (e *Engine) ProcessMessage(accountID string, msg Message, history []ai.Message, opts ai.Options) (string, error) {
	b := e.binding(accountID)
	if b == nil {
		return "", fmt.Errorf("account %s has no scenario loaded", accountID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	scene := b.scenario.Scene(b.current)
	if scene == nil {
		return "", fmt.Errorf("account %s: current scene %q missing", accountID, b.current)
	}

	matched := false
	for _, tr := range scene.Triggers {
		if tr.Matches(msg) {
			matched = true
			break
		}
	}
	if !matched {
		return "", nil
	}

	now := time.Now()
	key := accountID + "/" + msg.ConversationID
	resp, ok := e.selector.Select(key, scene.Responses, now, e.strict)
	if !ok {
		return "", nil
	}

	text := substitute(resp.Template, b.vars, msg)
	if resp.AI && e.provider != nil {
		generated, err := e.generate(scene, resp, history, msg, opts)
		if err != nil {
			// fall back to the literal template; a generation failure must
			// never swallow a reply the script can produce on its own
			log.Printf("[SCENARIO] generate failed account=%s scene=%s: %v", accountID, scene.ID, err)
		} else if generated != "" {
			text = generated
		}
	}
	e.selector.Record(key, resp.Template, text, now)

	if scene.NextScene != "" {
		b.history = append(b.history, b.current)
		b.current = scene.NextScene
	}
	return text, nil
}

// TransitionScene moves the account to sceneID if it exists.
func (e *Engine) TransitionScene(accountID, sceneID string) bool {
	b := e.binding(accountID)
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scenario.Scene(sceneID) == nil {
		return false
	}
	b.history = append(b.history, b.current)
	b.current = sceneID
	return true
}

// HotUpdate replaces the account's scenario. With preserveState, the
// current scene, history and variables survive when the new scenario still
// contains the current scene id; otherwise the binding restarts at the new
// scenario's first scene.
func (e *Engine) HotUpdate(accountID string, s *Scenario, preserveState bool) bool {
	if s == nil || len(s.Scenes) == 0 {
		return false
	}
	b := e.binding(accountID)
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if preserveState && s.Scene(b.current) != nil {
		b.scenario = s
		return true
	}
	b.scenario = s
	b.current = s.FirstSceneID()
	if !preserveState {
		b.history = nil
		b.vars = make(map[string]string)
	}
	return true
}

func (e *Engine) binding(accountID string) *binding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bindings[accountID]
}

// generate asks the provider to complete the response in character.
func (e *Engine) generate(scene *Scene, resp *Response, history []ai.Message, msg Message, opts ai.Options) (string, error) {
	var sb strings.Builder
	sb.WriteString("You are playing a character in a group chat.")
	if resp.Role != "" {
		sb.WriteString(" Your role: " + resp.Role + ".")
	}
	if scene.Description != "" {
		sb.WriteString(" Scene: " + scene.Description + ".")
	}
	sb.WriteString(" Reply in one short message, staying close to this line: ")
	sb.WriteString(resp.Template)

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: "system", Content: sb.String()})
	messages = append(messages, history...)
	messages = append(messages, ai.Message{Role: "user", Content: msg.Text})

	reply, err := e.provider.Generate(messages, opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// substitute expands {var} placeholders from the variable bag plus the
// built-ins {sender}, {conversation} and {time}.
func substitute(template string, vars map[string]string, msg Message) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	out = strings.ReplaceAll(out, "{sender}", msg.SenderName)
	out = strings.ReplaceAll(out, "{conversation}", msg.ConversationID)
	out = strings.ReplaceAll(out, "{time}", time.Now().Format("15:04"))
	return out
}
