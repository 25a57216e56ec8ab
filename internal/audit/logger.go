package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/interaction-monitor/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id                 UUID PRIMARY KEY,
	created_at         TIMESTAMPTZ NOT NULL,
	source             TEXT NOT NULL,
	input              TEXT NOT NULL,
	output             TEXT NOT NULL,
	content_type       TEXT NOT NULL,
	validation_results JSONB NOT NULL,
	blocked            BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS incidents (
	id               UUID PRIMARY KEY,
	created_at       TIMESTAMPTZ NOT NULL,
	interaction_id   UUID NOT NULL,
	severity         TEXT NOT NULL,
	rule             JSONB NOT NULL,
	content          TEXT NOT NULL,
	status           TEXT NOT NULL,
	resolution_notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS incidents_created_at_idx ON incidents (created_at DESC);
CREATE INDEX IF NOT EXISTS interactions_created_at_idx ON interactions (created_at DESC)`

// Logger handles interaction and incident persistence
type Logger struct {
	db *sql.DB
}

// NewLogger creates a new Logger
func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// DB returns the underlying connection pool
func (l *Logger) DB() *sql.DB {
	return l.db
}

// EnsureSchema creates the history tables if they do not exist
func (l *Logger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create history tables: %w", err)
	}
	return nil
}

// Write records an interaction and its incidents in one transaction.
// Records that already exist are left untouched.
func (l *Logger) Write(ctx context.Context, interaction models.AIInteraction, incidents []models.Incident) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row, err := InteractionRow(interaction)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO interactions (
			id, created_at, source, input, output, content_type, validation_results, blocked
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, row...); err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	for _, inc := range incidents {
		row, err := IncidentRow(inc)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO incidents (
				id, created_at, interaction_id, severity, rule, content, status, resolution_notes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, row...); err != nil {
			return fmt.Errorf("failed to insert incident: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveIncidentStatus persists the current status and notes of an incident.
// The incident row is inserted when it is still waiting in the Redis queue.
func (l *Logger) SaveIncidentStatus(ctx context.Context, inc models.Incident) error {
	row, err := IncidentRow(inc)
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, created_at, interaction_id, severity, rule, content, status, resolution_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			resolution_notes = EXCLUDED.resolution_notes
	`, row...); err != nil {
		return fmt.Errorf("failed to save status of incident %s: %w", inc.ID, err)
	}
	return nil
}

// LoadRecent returns up to limit of the newest interactions and incidents, newest first
func (l *Logger) LoadRecent(ctx context.Context, limit int) ([]models.AIInteraction, []models.Incident, error) {
	interactions, err := l.loadInteractions(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	incidents, err := l.loadIncidents(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	return interactions, incidents, nil
}

func (l *Logger) loadInteractions(ctx context.Context, limit int) ([]models.AIInteraction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, created_at, source, input, output, content_type, validation_results, blocked
		FROM interactions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	defer rows.Close()

	out := make([]models.AIInteraction, 0)
	for rows.Next() {
		var (
			i           models.AIInteraction
			contentType string
			results     []byte
		)
		if err := rows.Scan(&i.ID, &i.Timestamp, &i.Source, &i.Input, &i.Output, &contentType, &results, &i.Blocked); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		i.ContentType = models.ContentType(contentType)
		if err := json.Unmarshal(results, &i.ValidationResults); err != nil {
			return nil, fmt.Errorf("failed to decode validation results of %s: %w", i.ID, err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (l *Logger) loadIncidents(ctx context.Context, limit int) ([]models.Incident, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, created_at, interaction_id, severity, rule, content, status, resolution_notes
		FROM incidents
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load incidents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Incident, 0)
	for rows.Next() {
		var (
			inc      models.Incident
			severity string
			status   string
			rule     []byte
		)
		if err := rows.Scan(&inc.ID, &inc.Timestamp, &inc.AIInteractionID, &severity, &rule, &inc.Content, &status, &inc.ResolutionNotes); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		inc.Severity = models.Severity(severity)
		inc.Status = models.IncidentStatus(status)
		if err := json.Unmarshal(rule, &inc.Rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule of incident %s: %w", inc.ID, err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// InteractionRow returns the column values of an interaction in table order.
// JSON columns are passed as strings so they survive COPY unchanged.
func InteractionRow(i models.AIInteraction) ([]interface{}, error) {
	results, err := json.Marshal(i.ValidationResults)
	if err != nil {
		return nil, fmt.Errorf("failed to encode validation results: %w", err)
	}
	return []interface{}{
		i.ID,
		i.Timestamp,
		i.Source,
		i.Input,
		i.Output,
		string(i.ContentType),
		string(results),
		i.Blocked,
	}, nil
}

// IncidentRow returns the column values of an incident in table order
func IncidentRow(inc models.Incident) ([]interface{}, error) {
	rule, err := json.Marshal(inc.Rule)
	if err != nil {
		return nil, fmt.Errorf("failed to encode incident rule: %w", err)
	}
	return []interface{}{
		inc.ID,
		inc.Timestamp,
		inc.AIInteractionID,
		string(inc.Severity),
		string(rule),
		inc.Content,
		string(inc.Status),
		inc.ResolutionNotes,
	}, nil
}

// InteractionColumns and IncidentColumns list the columns used by InteractionRow and IncidentRow
var (
	InteractionColumns = []string{"id", "created_at", "source", "input", "output", "content_type", "validation_results", "blocked"}
	IncidentColumns    = []string{"id", "created_at", "interaction_id", "severity", "rule", "content", "status", "resolution_notes"}
)
