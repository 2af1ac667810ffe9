package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is one raised condition. Resolved moves only from false to true.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	AccountID string    `json:"account_id,omitempty"` // empty for system-scoped alerts
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
	Resolved  bool      `json:"resolved"`
}

// Rule is one custom alert rule: a metric selector compared against a
// threshold. Unknown selectors evaluate to no alert rather than erroring.
type Rule struct {
	Metric    string   `json:"metric"` // e.g. "error_rate", "process_errors"
	Op        string   `json:"op"`     // > >= < <= ==
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`
	Type      string   `json:"type,omitempty"` // defaults to the metric name
}

// Thresholds drive the default rule set used when no external rules are
// supplied.
type Thresholds struct {
	ErrorRate         float64
	ErrorRateWarning  float64
	ErrorCountCeiling int64
	OfflineFraction   float64
	ReplyLatencyMs    int64
	GiveawayFailRate  float64
	ProcessErrorCount int64
}

// DefaultThresholds returns conservative defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRate:         0.3,
		ErrorRateWarning:  0.1,
		ErrorCountCeiling: 100,
		OfflineFraction:   0.5,
		ReplyLatencyMs:    5000,
		GiveawayFailRate:  0.5,
		ProcessErrorCount: 50,
	}
}

// defaultRules expands the threshold set into rules.
func (t Thresholds) defaultRules() []Rule {
	return []Rule{
		{Metric: "error_rate", Op: ">", Threshold: t.ErrorRate, Severity: SeverityError, Type: "error_rate"},
		{Metric: "error_rate", Op: ">", Threshold: t.ErrorRateWarning, Severity: SeverityWarning, Type: "error_rate_warning"},
		{Metric: "errors", Op: ">", Threshold: float64(t.ErrorCountCeiling), Severity: SeverityError, Type: "system_errors"},
		{Metric: "offline_fraction", Op: ">", Threshold: t.OfflineFraction, Severity: SeverityWarning, Type: "accounts_offline"},
		{Metric: "avg_reply_latency_ms", Op: ">", Threshold: float64(t.ReplyLatencyMs), Severity: SeverityWarning, Type: "reply_latency"},
		{Metric: "giveaway_fail_rate", Op: ">", Threshold: t.GiveawayFailRate, Severity: SeverityWarning, Type: "giveaway_failures"},
		{Metric: "process_errors", Op: ">", Threshold: float64(t.ProcessErrorCount), Severity: SeverityWarning, Type: "processing_errors"},
	}
}

// metricValue resolves a selector against a snapshot. Second return is
// false for unknown selectors.
func metricValue(m SystemMetrics, selector string) (float64, bool) {
	switch selector {
	case "error_rate":
		return m.ErrorRate, true
	case "errors":
		return float64(m.Errors), true
	case "messages":
		return float64(m.Messages), true
	case "replies":
		return float64(m.Replies), true
	case "offline_fraction":
		return m.OfflineFraction, true
	case "avg_reply_latency_ms":
		return m.AvgReplyLatencyMs, true
	case "giveaway_fail_rate":
		return m.GiveawayFailRate, true
	case "process_errors":
		return float64(m.ProcessErrors), true
	}
	return 0, false
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	}
	return false
}

// Evaluate applies rules to a snapshot without touching service state.
func Evaluate(rules []Rule, m SystemMetrics) []Alert {
	now := time.Now()
	var out []Alert
	for _, r := range rules {
		v, ok := metricValue(m, r.Metric)
		if !ok {
			continue
		}
		if !compare(v, r.Op, r.Threshold) {
			continue
		}
		typ := r.Type
		if typ == "" {
			typ = r.Metric
		}
		out = append(out, Alert{
			ID:       uuid.NewString(),
			Type:     typ,
			Severity: r.Severity,
			Message:  fmt.Sprintf("%s %s %.3f (current %.3f)", r.Metric, r.Op, r.Threshold, v),
			At:       now,
		})
	}
	return out
}

// CheckAlerts evaluates rules (or the default set when rules is nil)
// against current system metrics, stores any newly raised alerts, and
// returns them. An already-open alert of the same type is not duplicated.
func (s *Service) CheckAlerts(rules []Rule) []Alert {
	if rules == nil {
		rules = s.thresholds.defaultRules()
	}
	raised := Evaluate(rules, s.GetSystemMetrics())

	s.mu.Lock()
	open := make(map[string]bool)
	for _, a := range s.alerts {
		if !a.Resolved {
			open[a.Type] = true
		}
	}
	var stored []Alert
	for _, a := range raised {
		if open[a.Type] {
			continue
		}
		open[a.Type] = true
		s.alerts = append(s.alerts, a)
		stored = append(stored, a)
	}
	s.mu.Unlock()

	for _, a := range stored {
		s.feed.publish(Update{Kind: UpdateAlert, Alert: &a})
	}
	return stored
}

// AlertFilter narrows Alerts queries. Zero values match everything.
type AlertFilter struct {
	Severity Severity
	Type     string
	Resolved *bool
}

// Alerts lists stored alerts matching the filter, newest first.
func (s *Service) Alerts(f AlertFilter) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Resolved != nil && a.Resolved != *f.Resolved {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ResolveAlert marks an alert resolved. Returns false for unknown ids;
// resolving twice is a no-op that still returns true.
func (s *Service) ResolveAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Resolved = true
			return true
		}
	}
	return false
}
