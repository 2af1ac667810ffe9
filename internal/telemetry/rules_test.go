package telemetry

import (
	"testing"
	"time"
)

func TestEvaluateStrictlyAboveThreshold(t *testing.T) {
	rules := []Rule{{Metric: "error_rate", Op: ">", Threshold: 0.5, Severity: SeverityError, Type: "error_rate"}}

	if got := Evaluate(rules, SystemMetrics{ErrorRate: 0.5}); len(got) != 0 {
		t.Fatalf("rate exactly at threshold must not fire, got %v", got)
	}
	got := Evaluate(rules, SystemMetrics{ErrorRate: 0.51})
	if len(got) != 1 {
		t.Fatalf("rate above threshold must fire, got %v", got)
	}
	if got[0].Type != "error_rate" || got[0].Severity != SeverityError {
		t.Fatalf("alert = %+v", got[0])
	}
}

func TestEvaluateSkipsUnknownSelector(t *testing.T) {
	rules := []Rule{{Metric: "disk_temperature", Op: ">", Threshold: 1}}
	if got := Evaluate(rules, SystemMetrics{}); len(got) != 0 {
		t.Fatalf("unknown selector fired: %v", got)
	}
}

func TestEvaluateOperators(t *testing.T) {
	m := SystemMetrics{Errors: 10}
	cases := []struct {
		op   string
		th   float64
		fire bool
	}{
		{">", 9, true}, {">", 10, false},
		{">=", 10, true}, {">=", 11, false},
		{"<", 11, true}, {"<", 10, false},
		{"<=", 10, true}, {"<=", 9, false},
		{"==", 10, true}, {"==", 9, false},
		{"~", 10, false}, // unknown operator never fires
	}
	for _, c := range cases {
		got := Evaluate([]Rule{{Metric: "errors", Op: c.op, Threshold: c.th}}, m)
		if fired := len(got) == 1; fired != c.fire {
			t.Fatalf("op %q threshold %v: fired=%v want %v", c.op, c.th, fired, c.fire)
		}
	}
}

func TestCheckAlertsDeduplicatesOpenAlerts(t *testing.T) {
	s := NewService(DefaultThresholds(), 0)
	rules := []Rule{{Metric: "errors", Op: ">=", Threshold: 0, Severity: SeverityWarning, Type: "always"}}

	first := s.CheckAlerts(rules)
	if len(first) != 1 {
		t.Fatalf("first check raised %d alerts", len(first))
	}
	if again := s.CheckAlerts(rules); len(again) != 0 {
		t.Fatalf("open alert duplicated: %v", again)
	}

	if !s.ResolveAlert(first[0].ID) {
		t.Fatalf("resolve failed for %s", first[0].ID)
	}
	if reraised := s.CheckAlerts(rules); len(reraised) != 1 {
		t.Fatalf("resolved alert should re-raise, got %d", len(reraised))
	}
}

func TestResolveAlertUnknownID(t *testing.T) {
	s := NewService(DefaultThresholds(), 0)
	if s.ResolveAlert("nope") {
		t.Fatalf("unknown alert id resolved")
	}
}

func TestAlertsFilter(t *testing.T) {
	s := NewService(DefaultThresholds(), 0)
	s.CheckAlerts([]Rule{
		{Metric: "errors", Op: ">=", Threshold: 0, Severity: SeverityWarning, Type: "warnish"},
		{Metric: "messages", Op: ">=", Threshold: 0, Severity: SeverityError, Type: "errish"},
	})

	if got := s.Alerts(AlertFilter{}); len(got) != 2 {
		t.Fatalf("unfiltered list = %v", got)
	}
	got := s.Alerts(AlertFilter{Severity: SeverityError})
	if len(got) != 1 || got[0].Type != "errish" {
		t.Fatalf("severity filter = %v", got)
	}
	got = s.Alerts(AlertFilter{Type: "warnish"})
	if len(got) != 1 || got[0].Severity != SeverityWarning {
		t.Fatalf("type filter = %v", got)
	}

	s.ResolveAlert(got[0].ID)
	resolved := true
	if got = s.Alerts(AlertFilter{Resolved: &resolved}); len(got) != 1 || got[0].Type != "warnish" {
		t.Fatalf("resolved filter = %v", got)
	}
}

func TestDefaultRulesFireOnBadFleet(t *testing.T) {
	s := NewService(DefaultThresholds(), 0)
	s.SetStatusFunc(func() (int, int) { return 1, 4 }) // 75% offline

	for i := 0; i < 10; i++ {
		s.RecordMessage("acc1")
		s.RecordError("acc1")
	}
	alerts := s.CheckAlerts(nil)
	types := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		types[a.Type] = true
	}
	if !types["error_rate"] {
		t.Fatalf("error_rate alert missing in %v", types)
	}
	if !types["accounts_offline"] {
		t.Fatalf("accounts_offline alert missing in %v", types)
	}
}

func TestFeedReceivesAlerts(t *testing.T) {
	s := NewService(DefaultThresholds(), 0)
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	s.CheckAlerts([]Rule{{Metric: "errors", Op: ">=", Threshold: 0, Type: "always"}})

	select {
	case u := <-ch:
		if u.Kind != UpdateAlert || u.Alert == nil || u.Alert.Type != "always" {
			t.Fatalf("update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatalf("no alert delivered on the feed")
	}
}
