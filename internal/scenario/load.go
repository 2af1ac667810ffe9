package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load decodes a scenario document. The two legacy layouts, the
// step-ordered list form and the dialogue-text form, are normalized
// into the canonical scenes shape before validation. The returned
// issue list is non-empty when the document is structurally valid YAML
// but violates scenario rules.
func Load(b []byte) (*Scenario, []Issue, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode scenario: %w", err)
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("decode scenario: empty document")
	}

	var (
		s   *Scenario
		err error
	)
	switch {
	case doc["scenes"] != nil:
		s, err = decodeCanonical(b)
	case doc["steps"] != nil:
		s, err = normalizeSteps(doc)
	case doc["dialogue"] != nil:
		s, err = normalizeDialogue(doc)
	default:
		return nil, nil, fmt.Errorf("scenario has none of scenes/steps/dialogue")
	}
	if err != nil {
		return nil, nil, err
	}
	return s, Validate(s), nil
}

// LoadFile reads and decodes one scenario file.
func LoadFile(path string) (*Scenario, []Issue, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Load(b)
}

// Marshal writes the canonical form: stable key order, consistent quoting.
// Marshal(Load(Marshal(s))) is byte-identical to Marshal(s).
func Marshal(s *Scenario) ([]byte, error) {
	return yaml.Marshal(s)
}

// Normalize parses any accepted layout and re-emits the canonical form.
// Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(b []byte) ([]byte, error) {
	s, _, err := Load(b)
	if err != nil {
		return nil, err
	}
	return Marshal(s)
}

func decodeCanonical(b []byte) (*Scenario, error) {
	// Version may legitimately appear as a bare number in hand-written
	// documents; decode loosely and restate it as a string.
	var raw struct {
		ID      string            `yaml:"scenario_id"`
		Version any               `yaml:"version"`
		Meta    map[string]string `yaml:"metadata"`
		Scenes  []Scene           `yaml:"scenes"`
	}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &Scenario{
		ID:      raw.ID,
		Version: versionString(raw.Version),
		Meta:    raw.Meta,
		Scenes:  raw.Scenes,
	}, nil
}

// normalizeSteps converts the legacy ordered step list:
//
//	steps:
//	  - trigger: hello          # string or list of strings
//	    reply: hi there
//	    ai: false
//
// into a chain of single-trigger scenes step_1 → step_2 → …
func normalizeSteps(doc map[string]any) (*Scenario, error) {
	rawSteps, ok := doc["steps"].([]any)
	if !ok {
		return nil, fmt.Errorf("steps: expected a list")
	}
	s := &Scenario{
		ID:      stringField(doc, "scenario_id"),
		Version: versionString(doc["version"]),
	}
	for i, rs := range rawSteps {
		step, ok := rs.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("steps[%d]: expected a mapping", i)
		}
		scene := Scene{
			ID:          fmt.Sprintf("step_%d", i+1),
			Description: stringField(step, "description"),
		}
		switch tv := step["trigger"].(type) {
		case string:
			scene.Triggers = []Trigger{{Kind: TriggerKeyword, Keywords: splitKeywords(tv)}}
		case []any:
			var kws []string
			for _, k := range tv {
				if ks, ok := k.(string); ok && ks != "" {
					kws = append(kws, ks)
				}
			}
			scene.Triggers = []Trigger{{Kind: TriggerKeyword, Keywords: kws}}
		case nil:
			// a step with no trigger fires on any non-empty message
			scene.Triggers = []Trigger{{Kind: TriggerLength, MinLen: 1}}
		default:
			return nil, fmt.Errorf("steps[%d].trigger: unsupported type %T", i, tv)
		}
		aiFlag, _ := step["ai"].(bool)
		scene.Responses = []Response{{
			Template: stringField(step, "reply"),
			AI:       aiFlag,
			Role:     stringField(step, "role"),
		}}
		if i < len(rawSteps)-1 {
			scene.NextScene = fmt.Sprintf("step_%d", i+2)
		}
		s.Scenes = append(s.Scenes, scene)
	}
	return s, nil
}

// normalizeDialogue converts the legacy dialogue-text form:
//
//	dialogue: |
//	  guest: hello there
//	  host: hi, welcome!
//
// Consecutive (cue, reply) line pairs become chained scenes; the cue line's
// significant words form a keyword trigger, the reply line becomes the
// response template with its speaker as the role.
func normalizeDialogue(doc map[string]any) (*Scenario, error) {
	text, ok := doc["dialogue"].(string)
	if !ok {
		return nil, fmt.Errorf("dialogue: expected a string block")
	}
	var lines []struct{ role, text string }
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		role, rest, found := strings.Cut(ln, ":")
		if !found {
			role, rest = "", ln
		}
		lines = append(lines, struct{ role, text string }{strings.TrimSpace(role), strings.TrimSpace(rest)})
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("dialogue: need at least one cue/reply pair")
	}
	s := &Scenario{
		ID:      stringField(doc, "scenario_id"),
		Version: versionString(doc["version"]),
	}
	n := 0
	for i := 0; i+1 < len(lines); i += 2 {
		n++
		cue, reply := lines[i], lines[i+1]
		scene := Scene{
			ID:       fmt.Sprintf("line_%d", n),
			Triggers: []Trigger{{Kind: TriggerKeyword, Keywords: significantWords(cue.text, 3)}},
			Responses: []Response{{
				Template: reply.text,
				Role:     reply.role,
			}},
		}
		if i+3 < len(lines) {
			scene.NextScene = fmt.Sprintf("line_%d", n+1)
		}
		s.Scenes = append(s.Scenes, scene)
	}
	return s, nil
}

func versionString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func splitKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// significantWords returns up to max lowercase words of 3+ runes from s.
func significantWords(s string, max int) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if len([]rune(w)) < 3 {
			continue
		}
		out = append(out, w)
		if len(out) >= max {
			break
		}
	}
	if len(out) == 0 && s != "" {
		out = append(out, strings.ToLower(strings.Fields(s)[0]))
	}
	return out
}
