package scenario

import "fmt"

// Issue is one validation problem found in a scenario document.
type Issue struct {
	SceneID string
	Field   string
	Msg     string
}

func (i Issue) String() string {
	if i.SceneID == "" {
		return fmt.Sprintf("%s: %s", i.Field, i.Msg)
	}
	return fmt.Sprintf("scene %q, %s: %s", i.SceneID, i.Field, i.Msg)
}

// Validate checks the whole scenario and returns every problem found,
// not just the first. An empty slice means the scenario is usable.
func Validate(s *Scenario) []Issue {
	var issues []Issue
	if s.ID == "" {
		issues = append(issues, Issue{Field: "scenario_id", Msg: "missing"})
	}
	if len(s.Scenes) == 0 {
		issues = append(issues, Issue{Field: "scenes", Msg: "scenario has no scenes"})
		return issues
	}

	ids := make(map[string]bool, len(s.Scenes))
	for _, sc := range s.Scenes {
		if sc.ID == "" {
			issues = append(issues, Issue{Field: "id", Msg: "scene without id"})
			continue
		}
		if ids[sc.ID] {
			issues = append(issues, Issue{SceneID: sc.ID, Field: "id", Msg: "duplicate scene id"})
		}
		ids[sc.ID] = true
	}

	for _, sc := range s.Scenes {
		if len(sc.Triggers) == 0 {
			issues = append(issues, Issue{SceneID: sc.ID, Field: "triggers", Msg: "scene needs at least one trigger"})
		}
		for j, tr := range sc.Triggers {
			field := fmt.Sprintf("triggers[%d]", j)
			if !KnownTriggerKind(tr.Kind) {
				issues = append(issues, Issue{SceneID: sc.ID, Field: field,
					Msg: fmt.Sprintf("unknown trigger type %q", tr.Kind)})
				continue
			}
			if tr.Kind == TriggerKeyword && len(tr.Keywords) == 0 {
				issues = append(issues, Issue{SceneID: sc.ID, Field: field, Msg: "keyword trigger without keywords"})
			}
			if tr.Kind == TriggerLength && tr.MaxLen > 0 && tr.MinLen > tr.MaxLen {
				issues = append(issues, Issue{SceneID: sc.ID, Field: field, Msg: "min_len greater than max_len"})
			}
		}
		if len(sc.Responses) == 0 {
			issues = append(issues, Issue{SceneID: sc.ID, Field: "responses", Msg: "scene needs at least one response"})
		}
		for j, r := range sc.Responses {
			if r.Template == "" {
				issues = append(issues, Issue{SceneID: sc.ID,
					Field: fmt.Sprintf("responses[%d].template", j), Msg: "empty template"})
			}
		}
		if sc.NextScene != "" && !ids[sc.NextScene] {
			issues = append(issues, Issue{SceneID: sc.ID, Field: "next_scene",
				Msg: fmt.Sprintf("references unknown scene %q", sc.NextScene)})
		}
	}
	return issues
}
