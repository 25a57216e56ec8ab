package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/interaction-monitor/internal/incident"
	"github.com/interaction-monitor/pkg/models"
)

var ErrIncidentNotFound = errors.New("incident not found")

// InteractionFilter selects interactions for the audit view. Zero values match everything.
type InteractionFilter struct {
	Search      string // case-insensitive substring of input or output
	Blocked     *bool
	ContentType models.ContentType
}

func (f InteractionFilter) matches(i models.AIInteraction) bool {
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(i.Input), term) &&
			!strings.Contains(strings.ToLower(i.Output), term) {
			return false
		}
	}
	if f.Blocked != nil && i.Blocked != *f.Blocked {
		return false
	}
	if f.ContentType != "" && i.ContentType != f.ContentType {
		return false
	}
	return true
}

// IncidentFilter selects incidents by status and/or severity
type IncidentFilter struct {
	Status   models.IncidentStatus
	Severity models.Severity
}

func (f IncidentFilter) matches(inc models.Incident) bool {
	if f.Status != "" && inc.Status != f.Status {
		return false
	}
	if f.Severity != "" && inc.Severity != f.Severity {
		return false
	}
	return true
}

// Log is the in-memory interaction and incident history, newest first
type Log struct {
	mu           sync.RWMutex
	interactions []models.AIInteraction
	incidents    []models.Incident
}

// NewLog creates an empty history
func NewLog() *Log {
	return &Log{}
}

// Seed replaces the history with records restored from storage (newest first)
func (l *Log) Seed(interactions []models.AIInteraction, incidents []models.Incident) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interactions = append([]models.AIInteraction(nil), interactions...)
	l.incidents = append([]models.Incident(nil), incidents...)
}

// Record prepends an interaction and its incidents
func (l *Log) Record(interaction models.AIInteraction, incidents []models.Incident) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.interactions = append([]models.AIInteraction{interaction}, l.interactions...)
	if len(incidents) > 0 {
		next := make([]models.Incident, 0, len(incidents)+len(l.incidents))
		next = append(next, incidents...)
		l.incidents = append(next, l.incidents...)
	}
}

// Interactions returns the interactions matching filter, newest first
func (l *Log) Interactions(filter InteractionFilter) []models.AIInteraction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.AIInteraction, 0)
	for _, i := range l.interactions {
		if filter.matches(i) {
			out = append(out, i)
		}
	}
	return out
}

// Incidents returns the incidents matching filter, newest first
func (l *Log) Incidents(filter IncidentFilter) []models.Incident {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Incident, 0)
	for _, inc := range l.incidents {
		if filter.matches(inc) {
			out = append(out, inc)
		}
	}
	return out
}

// Snapshot returns copies of both histories
func (l *Log) Snapshot() ([]models.AIInteraction, []models.Incident) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.AIInteraction(nil), l.interactions...),
		append([]models.Incident(nil), l.incidents...)
}

// UpdateIncidentStatus changes the status and notes of one incident
func (l *Log) UpdateIncidentStatus(id uuid.UUID, status models.IncidentStatus, notes string) (models.Incident, error) {
	if !status.Valid() {
		return models.Incident{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.incidents {
		if l.incidents[i].ID != id {
			continue
		}
		if err := incident.ApplyStatus(&l.incidents[i], status, notes); err != nil {
			return models.Incident{}, err
		}
		return l.incidents[i], nil
	}
	return models.Incident{}, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
}
