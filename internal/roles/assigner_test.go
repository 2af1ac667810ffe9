package roles

import (
	"testing"

	"github.com/keshon/troupe/internal/scenario"
)

func weightedScenario() *scenario.Scenario {
	// roles: alice weight 1, bob weight 2, carol weight 1
	return &scenario.Scenario{
		ID: "play",
		Scenes: []scenario.Scene{
			{ID: "s1", Responses: []scenario.Response{
				{Template: "line", Role: "alice"},
				{Template: "line", Role: "bob"},
			}},
			{ID: "s2", Responses: []scenario.Response{
				{Template: "line", Role: "bob"},
				{Template: "line", Role: "carol"},
			}},
		},
	}
}

func TestExtractRolesWeights(t *testing.T) {
	roles := ExtractRoles(weightedScenario())
	if len(roles) != 3 {
		t.Fatalf("roles = %v", roles)
	}
	if roles["alice"].Weight != 1 || roles["bob"].Weight != 2 || roles["carol"].Weight != 1 {
		t.Fatalf("weights: alice=%v bob=%v carol=%v",
			roles["alice"].Weight, roles["bob"].Weight, roles["carol"].Weight)
	}
}

func TestExtractRolesAILinesWeighHeavier(t *testing.T) {
	s := &scenario.Scenario{
		ID: "gen",
		Scenes: []scenario.Scene{{ID: "s1", Responses: []scenario.Response{
			{Template: "x", Role: "host", AI: true},
			{Template: "y", Role: "guest"},
		}}},
	}
	roles := ExtractRoles(s)
	if roles["host"].Weight <= roles["guest"].Weight {
		t.Fatalf("generative line should outweigh a template line: %v vs %v",
			roles["host"].Weight, roles["guest"].Weight)
	}
}

func TestExtractRolesFallbackChain(t *testing.T) {
	s := &scenario.Scenario{
		ID:   "meta",
		Meta: map[string]string{"role": "narrator"},
		Scenes: []scenario.Scene{
			{ID: "s1", Meta: map[string]string{"role": "host"},
				Responses: []scenario.Response{{Template: "x"}}},
			{ID: "s2", Responses: []scenario.Response{{Template: "y"}}},
		},
	}
	roles := ExtractRoles(s)
	if roles["host"] == nil || roles["narrator"] == nil {
		t.Fatalf("scene and scenario metadata roles not picked up: %v", roles)
	}
}

func TestExtractRolesSyntheticDefault(t *testing.T) {
	s := &scenario.Scenario{
		ID: "plain",
		Scenes: []scenario.Scene{{ID: "s1", Responses: []scenario.Response{
			{Template: "a"}, {Template: "b"},
		}}},
	}
	roles := ExtractRoles(s)
	if len(roles) != 1 || roles["default"] == nil || roles["default"].Lines != 2 {
		t.Fatalf("synthetic default role = %v", roles)
	}
}

func TestCreatePlanBalancesMoreRolesThanAccounts(t *testing.T) {
	plan, err := CreatePlan(weightedScenario(), []string{"acc1", "acc2"}, ModeAuto, nil)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if len(plan.Assignments) != 3 {
		t.Fatalf("every role must be assigned exactly once, got %v", plan.Assignments)
	}
	seen := make(map[string]bool)
	loads := make(map[string]float64)
	for _, a := range plan.Assignments {
		if seen[a.RoleID] {
			t.Fatalf("role %q assigned twice", a.RoleID)
		}
		seen[a.RoleID] = true
		loads[a.AccountID] += a.Weight
	}
	// total weight 4 over 2 accounts: both must land on 2
	if loads["acc1"] != 2 || loads["acc2"] != 2 {
		t.Fatalf("unbalanced loads: %v", loads)
	}
	if ok, issues := Validate(plan); !ok {
		t.Fatalf("balanced plan flagged: %v", issues)
	}
}

func TestCreatePlanOneRolePerAccountWhenRoomAllows(t *testing.T) {
	plan, err := CreatePlan(weightedScenario(), []string{"a", "b", "c", "d"}, ModeAuto, nil)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	perAccount := make(map[string]int)
	for _, as := range plan.Assignments {
		perAccount[as.AccountID]++
	}
	for acc, n := range perAccount {
		if n != 1 {
			t.Fatalf("account %q carries %d roles, want 1", acc, n)
		}
	}
}

func TestCreatePlanManualMode(t *testing.T) {
	manual := map[string]string{"bob": "acc2"}
	plan, err := CreatePlan(weightedScenario(), []string{"acc1", "acc2"}, ModeManual, manual)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	for _, a := range plan.Assignments {
		if a.RoleID == "bob" && a.AccountID != "acc2" {
			t.Fatalf("manual pin ignored: %+v", a)
		}
	}
	if len(plan.Assignments) != 3 {
		t.Fatalf("remainder not auto-assigned: %v", plan.Assignments)
	}
}

func TestCreatePlanManualValidation(t *testing.T) {
	if _, err := CreatePlan(weightedScenario(), []string{"acc1"}, ModeManual,
		map[string]string{"ghost": "acc1"}); err == nil {
		t.Fatalf("unknown manual role accepted")
	}
	if _, err := CreatePlan(weightedScenario(), []string{"acc1"}, ModeManual,
		map[string]string{"bob": "outsider"}); err == nil {
		t.Fatalf("manual account outside the set accepted")
	}
	if _, err := CreatePlan(weightedScenario(), nil, ModeAuto, nil); err == nil {
		t.Fatalf("empty account set accepted")
	}
}

func TestValidateFlagsSkewAndGaps(t *testing.T) {
	plan := &Plan{
		Roles: map[string]*Role{
			"a": {ID: "a", Weight: 9},
			"b": {ID: "b", Weight: 1},
			"c": {ID: "c", Weight: 1},
		},
		Assignments: []Assignment{
			{RoleID: "a", AccountID: "acc1", Weight: 9},
			{RoleID: "b", AccountID: "acc2", Weight: 1},
		},
	}
	ok, issues := Validate(plan)
	if ok {
		t.Fatalf("skewed incomplete plan passed")
	}
	foundUnassigned, foundSkew := false, false
	for _, msg := range issues {
		if msg == `role "c" is unassigned` {
			foundUnassigned = true
		}
		if len(msg) > 0 && msg[:7] == "account" {
			foundSkew = true
		}
	}
	if !foundUnassigned || !foundSkew {
		t.Fatalf("issues = %v", issues)
	}
}
