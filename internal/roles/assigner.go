// Package roles maps scenario characters onto available accounts,
// balancing dialogue weight across the fleet.
package roles

import (
	"fmt"
	"sort"

	"github.com/keshon/troupe/internal/scenario"
)

// Role is one named character discovered in a scenario.
type Role struct {
	ID     string
	Name   string
	Lines  int
	Weight float64
}

// Assignment binds one role to one account.
type Assignment struct {
	RoleID    string
	AccountID string
	Weight    float64
}

// Mode selects how a plan was produced.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Plan is one computed role-to-account mapping. Plans are not persisted;
// callers recompute per scenario and account set.
type Plan struct {
	ScenarioID  string
	Roles       map[string]*Role
	Assignments []Assignment
	Mode        Mode
}

// generative lines carry more dialogue weight than fixed templates
const aiLineWeight = 2.0

// ExtractRoles discovers roles from scenario, scene and response metadata.
// When nothing declares a role, a single synthetic "default" role holds
// every line.
func ExtractRoles(s *scenario.Scenario) map[string]*Role {
	out := make(map[string]*Role)
	add := func(name string, ai bool) {
		if name == "" {
			return
		}
		r := out[name]
		if r == nil {
			r = &Role{ID: name, Name: name}
			out[name] = r
		}
		r.Lines++
		if ai {
			r.Weight += aiLineWeight
		} else {
			r.Weight++
		}
	}

	for _, sc := range s.Scenes {
		sceneRole := sc.Meta["role"]
		for _, resp := range sc.Responses {
			role := resp.Role
			if role == "" {
				role = sceneRole
			}
			if role == "" {
				role = s.Meta["role"]
			}
			add(role, resp.AI)
		}
	}

	if len(out) == 0 {
		def := &Role{ID: "default", Name: "default"}
		for _, sc := range s.Scenes {
			for _, resp := range sc.Responses {
				def.Lines++
				if resp.AI {
					def.Weight += aiLineWeight
				} else {
					def.Weight++
				}
			}
		}
		out[def.ID] = def
	}
	return out
}

// CreatePlan computes a role-to-account mapping. In manual mode the
// explicit pairs are honored and the remainder is auto-assigned.
func CreatePlan(s *scenario.Scenario, accountIDs []string, mode Mode, manual map[string]string) (*Plan, error) {
	if len(accountIDs) == 0 {
		return nil, fmt.Errorf("create plan: no accounts")
	}
	roles := ExtractRoles(s)
	plan := &Plan{ScenarioID: s.ID, Roles: roles, Mode: mode}

	remaining := make([]*Role, 0, len(roles))
	assignedAccounts := make(map[string]float64, len(accountIDs))
	for _, id := range accountIDs {
		assignedAccounts[id] = 0
	}

	if mode == ModeManual {
		for roleID, accountID := range manual {
			r, ok := roles[roleID]
			if !ok {
				return nil, fmt.Errorf("create plan: manual role %q not in scenario %s", roleID, s.ID)
			}
			if _, ok := assignedAccounts[accountID]; !ok {
				return nil, fmt.Errorf("create plan: manual account %q not in account set", accountID)
			}
			plan.Assignments = append(plan.Assignments, Assignment{RoleID: roleID, AccountID: accountID, Weight: r.Weight})
			assignedAccounts[accountID] += r.Weight
		}
	}

	for id, r := range roles {
		if mode == ModeManual {
			if _, ok := manual[id]; ok {
				continue
			}
		}
		remaining = append(remaining, r)
	}
	// heaviest first; ties broken by id for determinism
	sort.Slice(remaining, func(i, j int) bool {
		if remaining[i].Weight != remaining[j].Weight {
			return remaining[i].Weight > remaining[j].Weight
		}
		return remaining[i].ID < remaining[j].ID
	})

	if len(remaining) <= freeSlots(assignedAccounts, accountIDs) {
		// one role per account, heaviest onto the least loaded
		for _, r := range remaining {
			acc := leastLoaded(assignedAccounts, accountIDs)
			plan.Assignments = append(plan.Assignments, Assignment{RoleID: r.ID, AccountID: acc, Weight: r.Weight})
			assignedAccounts[acc] += r.Weight
		}
		return plan, nil
	}

	// more roles than accounts: greedy pack, advancing once an account's
	// running weight reaches totalWeight / accountCount
	var total float64
	for _, r := range remaining {
		total += r.Weight
	}
	target := total / float64(len(accountIDs))
	idx := 0
	for _, r := range remaining {
		acc := accountIDs[idx]
		plan.Assignments = append(plan.Assignments, Assignment{RoleID: r.ID, AccountID: acc, Weight: r.Weight})
		assignedAccounts[acc] += r.Weight
		if assignedAccounts[acc] >= target && idx < len(accountIDs)-1 {
			idx++
		}
	}
	return plan, nil
}

// Validate flags unassigned roles and accounts whose load deviates from
// the mean by more than 50%.
func Validate(p *Plan) (bool, []string) {
	var issues []string

	assigned := make(map[string]bool, len(p.Assignments))
	loads := make(map[string]float64)
	for _, a := range p.Assignments {
		if assigned[a.RoleID] {
			issues = append(issues, fmt.Sprintf("role %q assigned more than once", a.RoleID))
		}
		assigned[a.RoleID] = true
		loads[a.AccountID] += a.Weight
	}
	for id := range p.Roles {
		if !assigned[id] {
			issues = append(issues, fmt.Sprintf("role %q is unassigned", id))
		}
	}

	if len(loads) > 1 {
		var total float64
		for _, w := range loads {
			total += w
		}
		mean := total / float64(len(loads))
		for acc, w := range loads {
			if mean > 0 && (w > mean*1.5 || w < mean*0.5) {
				issues = append(issues, fmt.Sprintf("account %q load %.1f deviates more than 50%% from mean %.1f", acc, w, mean))
			}
		}
	}
	return len(issues) == 0, issues
}

func freeSlots(loads map[string]float64, accountIDs []string) int {
	n := 0
	for _, id := range accountIDs {
		if loads[id] == 0 {
			n++
		}
	}
	return n
}

func leastLoaded(loads map[string]float64, accountIDs []string) string {
	best := accountIDs[0]
	for _, id := range accountIDs[1:] {
		if loads[id] < loads[best] {
			best = id
		}
	}
	return best
}
