package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/interaction-monitor/internal/analyzer"
	"github.com/interaction-monitor/internal/dashboard"
	"github.com/interaction-monitor/internal/history"
	"github.com/interaction-monitor/internal/incident"
	"github.com/interaction-monitor/internal/metrics"
	"github.com/interaction-monitor/internal/notify"
	"github.com/interaction-monitor/pkg/models"
	"go.uber.org/zap"
)

// HistorySink persists submitted interactions and their incidents
type HistorySink interface {
	Enqueue(ctx context.Context, interaction models.AIInteraction, incidents []models.Incident) error
}

// IncidentStore persists incident status changes
type IncidentStore interface {
	SaveIncidentStatus(ctx context.Context, inc models.Incident) error
}

// Service ties evaluation, incident derivation, history and metrics together
type Service struct {
	analyzer  *analyzer.Analyzer
	deriver   *incident.Deriver
	history   *history.Log
	sink      HistorySink
	incidents IncidentStore
	notifier  notify.Notifier
	logger    *zap.SugaredLogger
	now       func() time.Time

	// one submission in flight at a time keeps history order total
	submitMu sync.Mutex
}

// Config holds the optional collaborators of a Service
type Config struct {
	Sink      HistorySink
	Incidents IncidentStore
	Notifier  notify.Notifier
	Logger    *zap.SugaredLogger
	Now       func() time.Time
}

// NewService creates a new Service
func NewService(a *analyzer.Analyzer, log *history.Log, cfg Config) *Service {
	s := &Service{
		analyzer:  a,
		history:   log,
		sink:      cfg.Sink,
		incidents: cfg.Incidents,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	s.deriver = incident.NewDeriver(s.notifier, s.logger)
	return s
}

// SubmitResult is the outcome of one submission
type SubmitResult struct {
	Interaction models.AIInteraction
	Incidents   []models.Incident
}

// Submit evaluates an interaction, derives incidents when it is blocked and
// records both. The content type is checked before anything is recorded.
func (s *Service) Submit(ctx context.Context, input, output, contentType, source string) (*SubmitResult, error) {
	ct, err := models.ParseContentType(contentType)
	if err != nil {
		return nil, err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	interaction, err := s.analyzer.EvaluateInteraction(ctx, input, output, ct, source)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate interaction: %w", err)
	}
	incidents := s.deriver.Derive(ctx, interaction)

	s.history.Record(*interaction, incidents)

	outcome := "allowed"
	if interaction.Blocked {
		outcome = "blocked"
	}
	metrics.InteractionsTotal.WithLabelValues(string(ct), outcome).Inc()
	for _, inc := range incidents {
		metrics.IncidentsTotal.WithLabelValues(string(inc.Severity)).Inc()
	}

	if interaction.Blocked {
		s.notifier.Notify(ctx, notify.Event{
			Kind:    notify.KindInteractionBlocked,
			Level:   notify.LevelDestructive,
			Title:   "Interaction Blocked",
			Message: "This interaction violates policy rules and has been blocked.",
			Time:    interaction.Timestamp,
		})
	}
	if len(incidents) > 0 {
		s.notifier.Notify(ctx, notify.Event{
			Kind:    notify.KindIncidentCreated,
			Level:   notify.LevelWarning,
			Title:   "Policy Violation Detected",
			Message: fmt.Sprintf("%d violation(s) found in recent interaction", len(incidents)),
			Time:    interaction.Timestamp,
		})
	}

	if s.sink != nil {
		// History is already recorded in memory; a queue failure only delays persistence
		if err := s.sink.Enqueue(ctx, *interaction, incidents); err != nil {
			s.logger.Warnf("⚠️  Failed to queue interaction %s for persistence: %v", interaction.ID, err)
		}
	}

	return &SubmitResult{Interaction: *interaction, Incidents: incidents}, nil
}

// UpdateIncidentStatus sets an incident's status and notes
func (s *Service) UpdateIncidentStatus(ctx context.Context, id uuid.UUID, status, notes string) (models.Incident, error) {
	st, err := models.ParseIncidentStatus(status)
	if err != nil {
		return models.Incident{}, err
	}

	inc, err := s.history.UpdateIncidentStatus(id, st, notes)
	if err != nil {
		return models.Incident{}, err
	}

	if s.incidents != nil {
		if err := s.incidents.SaveIncidentStatus(ctx, inc); err != nil {
			s.logger.Warnf("⚠️  Failed to persist status of incident %s: %v", inc.ID, err)
		}
	}
	s.notifier.Notify(ctx, incident.StatusChanged(inc))
	return inc, nil
}

// Interactions returns recorded interactions, newest first
func (s *Service) Interactions(filter history.InteractionFilter) []models.AIInteraction {
	return s.history.Interactions(filter)
}

// Incidents returns recorded incidents, newest first
func (s *Service) Incidents(filter history.IncidentFilter) []models.Incident {
	return s.history.Incidents(filter)
}

// Metrics aggregates the current history as of asOf
func (s *Service) Metrics(asOf time.Time) models.DashboardMetrics {
	interactions, incidents := s.history.Snapshot()
	m := dashboard.Aggregate(interactions, incidents, asOf)
	metrics.RiskScore.Set(float64(m.RiskScore))
	return m
}

// CurrentMetrics aggregates the current history as of now
func (s *Service) CurrentMetrics() models.DashboardMetrics {
	return s.Metrics(s.now())
}
