// Package dashboard derives dashboard metrics from interaction and incident
// history. Everything here is a pure function of its arguments.
package dashboard

import (
	"math"
	"time"

	"github.com/interaction-monitor/pkg/models"
)

const (
	// TrendDays is the number of daily points in the violations trend
	TrendDays = 30
	// RecentWindow is the look-back used for the recency factor
	RecentWindow = 7 * 24 * time.Hour
	// recentSaturation is the recent incident count at which recency doubles the score
	recentSaturation = 5
	maxRiskScore     = 100
)

var severityWeights = map[models.Severity]int{
	models.SeverityCritical: 10,
	models.SeverityHigh:     5,
	models.SeverityMedium:   2,
	models.SeverityLow:      1,
}

// Aggregate computes the dashboard metrics as of asOf
func Aggregate(interactions []models.AIInteraction, incidents []models.Incident, asOf time.Time) models.DashboardMetrics {
	m := models.DashboardMetrics{
		TotalInteractions:    len(interactions),
		ViolationsByRule:     make(map[string]int),
		ViolationsBySeverity: make(map[models.Severity]int, len(models.Severities)),
		AsOf:                 asOf,
	}
	for _, level := range models.Severities {
		m.ViolationsBySeverity[level] = 0
	}

	for _, i := range interactions {
		if i.Blocked {
			m.BlockedInteractions++
		}
	}

	for _, inc := range incidents {
		switch {
		case inc.Status.IsOpen():
			m.OpenIncidents++
		case inc.Status.IsResolved():
			m.ResolvedIncidents++
		}
		if inc.Rule != nil {
			m.ViolationsByRule[inc.Rule.Name]++
		}
		if inc.Severity.Valid() {
			m.ViolationsBySeverity[inc.Severity]++
		}
	}

	m.ViolationsTrend = Trend(incidents, asOf)
	m.RiskScore = RiskScore(m.ViolationsBySeverity, RecentCount(incidents, asOf))
	return m
}

// Trend returns one point per UTC day for the TrendDays days ending at asOf
// (inclusive), oldest first. Days without incidents have a zero count.
func Trend(incidents []models.Incident, asOf time.Time) []models.TrendPoint {
	counts := make(map[string]int, len(incidents))
	for _, inc := range incidents {
		counts[dateKey(inc.Timestamp)]++
	}

	end := asOf.UTC()
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	trend := make([]models.TrendPoint, 0, TrendDays)
	for i := TrendDays - 1; i >= 0; i-- {
		day := dateKey(end.AddDate(0, 0, -i))
		trend = append(trend, models.TrendPoint{Date: day, Count: counts[day]})
	}
	return trend
}

// RecentCount counts incidents no older than RecentWindow and not after asOf
func RecentCount(incidents []models.Incident, asOf time.Time) int {
	n := 0
	for _, inc := range incidents {
		age := asOf.Sub(inc.Timestamp)
		if age >= 0 && age <= RecentWindow {
			n++
		}
	}
	return n
}

// RiskScore combines the severity-weighted average of violations with a
// recency factor, clamped to [0, 100]
func RiskScore(bySeverity map[models.Severity]int, recentCount int) int {
	weightedSum, total := 0, 0
	for _, level := range models.Severities {
		count := bySeverity[level]
		if count <= 0 {
			continue
		}
		weightedSum += count * severityWeights[level]
		total += count
	}
	if total == 0 {
		return 0
	}

	base := float64(weightedSum) / float64(total) * 10
	recency := math.Min(float64(recentCount)/recentSaturation, 1)
	score := int(math.Round(base * (1 + recency)))

	if score > maxRiskScore {
		return maxRiskScore
	}
	if score < 0 {
		return 0
	}
	return score
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
