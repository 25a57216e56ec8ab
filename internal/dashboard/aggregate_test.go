package dashboard

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/interaction-monitor/pkg/models"
)

var asOf = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func incidentAt(ts time.Time, sev models.Severity, status models.IncidentStatus, ruleName string) models.Incident {
	return models.Incident{
		ID:        uuid.New(),
		Timestamp: ts,
		Severity:  sev,
		Status:    status,
		Rule:      &models.ValidationRule{ID: ruleName, Name: ruleName, Severity: sev},
	}
}

func TestAggregate_Empty(t *testing.T) {
	m := Aggregate(nil, nil, asOf)

	if m.TotalInteractions != 0 || m.BlockedInteractions != 0 || m.RiskScore != 0 {
		t.Errorf("Aggregate() = %+v, want zero counts and score", m)
	}
	if len(m.ViolationsBySeverity) != 4 {
		t.Errorf("ViolationsBySeverity has %d levels, want 4", len(m.ViolationsBySeverity))
	}
	for _, level := range models.Severities {
		if n, ok := m.ViolationsBySeverity[level]; !ok || n != 0 {
			t.Errorf("ViolationsBySeverity[%s] = %d, %v, want 0, true", level, n, ok)
		}
	}
	if len(m.ViolationsTrend) != TrendDays {
		t.Errorf("ViolationsTrend has %d points, want %d", len(m.ViolationsTrend), TrendDays)
	}
}

func TestAggregate_Counts(t *testing.T) {
	interactions := []models.AIInteraction{{Blocked: true}, {Blocked: false}, {Blocked: true}}
	incidents := []models.Incident{
		incidentAt(asOf.Add(-time.Hour), models.SeverityCritical, models.StatusOpen, "Credit Card Detection"),
		incidentAt(asOf.Add(-2*time.Hour), models.SeverityCritical, models.StatusInvestigating, "Credit Card Detection"),
		incidentAt(asOf.Add(-48*time.Hour), models.SeverityHigh, models.StatusResolved, "PII Detection"),
		incidentAt(asOf.Add(-72*time.Hour), models.SeverityLow, models.StatusFalsePositive, "PII Detection"),
	}

	m := Aggregate(interactions, incidents, asOf)

	if m.TotalInteractions != 3 || m.BlockedInteractions != 2 {
		t.Errorf("interactions = %d/%d, want 3/2", m.TotalInteractions, m.BlockedInteractions)
	}
	if m.OpenIncidents != 2 || m.ResolvedIncidents != 2 {
		t.Errorf("open/resolved = %d/%d, want 2/2", m.OpenIncidents, m.ResolvedIncidents)
	}
	if m.ViolationsByRule["Credit Card Detection"] != 2 || m.ViolationsByRule["PII Detection"] != 2 {
		t.Errorf("ViolationsByRule = %v", m.ViolationsByRule)
	}
	if m.ViolationsBySeverity[models.SeverityCritical] != 2 || m.ViolationsBySeverity[models.SeverityMedium] != 0 {
		t.Errorf("ViolationsBySeverity = %v", m.ViolationsBySeverity)
	}
	if !m.AsOf.Equal(asOf) {
		t.Errorf("AsOf = %v, want %v", m.AsOf, asOf)
	}
}

func TestAggregate_Conservation(t *testing.T) {
	statuses := []models.IncidentStatus{models.StatusOpen, models.StatusInvestigating, models.StatusResolved, models.StatusFalsePositive}

	var incidents []models.Incident
	for i := 0; i < 37; i++ {
		incidents = append(incidents, incidentAt(
			asOf.Add(-time.Duration(i)*13*time.Hour),
			models.Severities[i%len(models.Severities)],
			statuses[(i*3)%len(statuses)],
			"rule",
		))

		m := Aggregate(nil, incidents, asOf)
		if m.OpenIncidents+m.ResolvedIncidents != len(incidents) {
			t.Fatalf("open+resolved = %d, want %d", m.OpenIncidents+m.ResolvedIncidents, len(incidents))
		}
		sum := 0
		for _, n := range m.ViolationsBySeverity {
			sum += n
		}
		if sum != len(incidents) {
			t.Fatalf("severity total = %d, want %d", sum, len(incidents))
		}
		if m.RiskScore < 0 || m.RiskScore > 100 {
			t.Fatalf("RiskScore = %d, out of bounds", m.RiskScore)
		}
	}
}

func TestAggregate_IgnoresUnknownSeverity(t *testing.T) {
	old := asOf.Add(-10 * 24 * time.Hour)
	incidents := []models.Incident{
		incidentAt(old, models.SeverityLow, models.StatusOpen, "r"),
		incidentAt(old, "urgent", models.StatusOpen, "r"),
	}

	m := Aggregate(nil, incidents, asOf)
	if len(m.ViolationsBySeverity) != len(models.Severities) {
		t.Errorf("ViolationsBySeverity = %v, want only the known levels", m.ViolationsBySeverity)
	}
	if m.RiskScore != 10 {
		t.Errorf("RiskScore = %d, want 10", m.RiskScore)
	}
	if m.OpenIncidents != 2 {
		t.Errorf("OpenIncidents = %d, want 2", m.OpenIncidents)
	}
}

func TestRecentCount(t *testing.T) {
	incidents := []models.Incident{
		incidentAt(asOf.Add(-8*24*time.Hour), models.SeverityHigh, models.StatusOpen, "r"),
		incidentAt(asOf.Add(-3*24*time.Hour), models.SeverityHigh, models.StatusOpen, "r"),
		incidentAt(asOf.Add(-7*24*time.Hour), models.SeverityHigh, models.StatusOpen, "r"),
		incidentAt(asOf.Add(time.Hour), models.SeverityHigh, models.StatusOpen, "r"),
	}

	// the 3 and 7 day old incidents; 8 days is too old and the future one is excluded
	if got := RecentCount(incidents, asOf); got != 2 {
		t.Errorf("RecentCount() = %d, want 2", got)
	}
}

func TestAggregate_RecencyWindow(t *testing.T) {
	incidents := []models.Incident{
		incidentAt(asOf.Add(-8*24*time.Hour), models.SeverityHigh, models.StatusOpen, "r"),
		incidentAt(asOf.Add(-3*24*time.Hour), models.SeverityHigh, models.StatusOpen, "r"),
	}

	// base 50, one recent incident: 50 * 1.2
	if got := Aggregate(nil, incidents, asOf).RiskScore; got != 60 {
		t.Errorf("RiskScore = %d, want 60", got)
	}
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name   string
		counts map[models.Severity]int
		recent int
		want   int
	}{
		{"no incidents", map[models.Severity]int{}, 0, 0},
		{"no incidents with recent count", map[models.Severity]int{models.SeverityLow: 0}, 4, 0},
		{"single old low", map[models.Severity]int{models.SeverityLow: 1}, 0, 10},
		{"single recent high", map[models.Severity]int{models.SeverityHigh: 1}, 1, 60},
		{"rounded average", map[models.Severity]int{models.SeverityHigh: 1, models.SeverityLow: 2}, 0, 23},
		{"mixed recent", map[models.Severity]int{models.SeverityCritical: 1, models.SeverityLow: 1}, 2, 77},
		{"recency saturates", map[models.Severity]int{models.SeverityMedium: 1}, 50, 40},
		{"clamped", map[models.Severity]int{models.SeverityCritical: 2}, 2, 100},
		{"unknown level ignored", map[models.Severity]int{models.SeverityLow: 1, "urgent": 3}, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskScore(tt.counts, tt.recent); got != tt.want {
				t.Errorf("RiskScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTrend(t *testing.T) {
	incidents := []models.Incident{
		incidentAt(time.Date(2024, 4, 30, 23, 30, 0, 0, time.UTC), models.SeverityLow, models.StatusOpen, "r"),
		incidentAt(time.Date(2024, 5, 1, 0, 10, 0, 0, time.UTC), models.SeverityLow, models.StatusOpen, "r"),
		incidentAt(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), models.SeverityLow, models.StatusOpen, "r"),
		// outside the window
		incidentAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), models.SeverityLow, models.StatusOpen, "r"),
	}

	trend := Trend(incidents, asOf)
	if len(trend) != TrendDays {
		t.Fatalf("Trend() has %d points, want %d", len(trend), TrendDays)
	}
	if trend[0].Date != "2024-04-02" || trend[len(trend)-1].Date != "2024-05-01" {
		t.Errorf("Trend() spans %s..%s, want 2024-04-02..2024-05-01", trend[0].Date, trend[len(trend)-1].Date)
	}
	if trend[29].Count != 2 || trend[28].Count != 1 || trend[0].Count != 0 {
		t.Errorf("Trend() tail = %+v", trend[27:])
	}

	total := 0
	for _, p := range trend {
		total += p.Count
	}
	if total != 3 {
		t.Errorf("Trend() total = %d, want 3", total)
	}
}

func TestTrend_UsesUTCDates(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*60*60)
	// 02:00 on May 1st local is still April 30th in UTC
	local := time.Date(2024, 5, 1, 2, 0, 0, 0, zone)

	trend := Trend([]models.Incident{incidentAt(local, models.SeverityLow, models.StatusOpen, "r")}, local)
	last := trend[len(trend)-1]
	if last.Date != "2024-04-30" || last.Count != 1 {
		t.Errorf("last point = %+v, want 2024-04-30 with 1", last)
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	incidents := []models.Incident{
		incidentAt(asOf.Add(-time.Hour), models.SeverityCritical, models.StatusOpen, "a"),
		incidentAt(asOf.Add(-50*time.Hour), models.SeverityMedium, models.StatusResolved, "b"),
	}
	first := Aggregate(nil, incidents, asOf)
	second := Aggregate(nil, incidents, asOf)
	if first.RiskScore != second.RiskScore || len(first.ViolationsTrend) != len(second.ViolationsTrend) {
		t.Errorf("Aggregate() not repeatable: %+v vs %+v", first, second)
	}
}
