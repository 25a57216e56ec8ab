package policy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/interaction-monitor/pkg/models"
	"github.com/lib/pq"
)

const rulesSchema = `
CREATE TABLE IF NOT EXISTS validation_rules (
	position      BIGSERIAL,
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	enabled       BOOLEAN NOT NULL DEFAULT TRUE,
	kind          TEXT NOT NULL DEFAULT 'regex',
	pattern       TEXT NOT NULL DEFAULT '',
	content_types TEXT[] NOT NULL,
	severity      TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Repository handles rule data access in PostgreSQL
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the rules table if it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, rulesSchema); err != nil {
		return fmt.Errorf("failed to create validation_rules table: %w", err)
	}
	return nil
}

// List returns all rules (enabled or not) in configured order
func (r *Repository) List(ctx context.Context) ([]models.ValidationRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, enabled, kind, pattern, content_types, severity
		FROM validation_rules
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := make([]models.ValidationRule, 0)
	for rows.Next() {
		var (
			rule         models.ValidationRule
			kind         string
			severity     string
			contentTypes pq.StringArray
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Description,
			&rule.Enabled,
			&kind,
			&rule.Pattern,
			&contentTypes,
			&severity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.Kind = models.RuleKind(kind)
		rule.Severity = models.Severity(severity)
		rule.ContentTypes = make([]models.ContentType, len(contentTypes))
		for i, ct := range contentTypes {
			rule.ContentTypes[i] = models.ContentType(ct)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// Save inserts the rule or updates it in place, keeping its position
func (r *Repository) Save(ctx context.Context, rule models.ValidationRule) error {
	query := `
		INSERT INTO validation_rules (
			id, name, description, enabled, kind, pattern, content_types, severity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			enabled = EXCLUDED.enabled,
			kind = EXCLUDED.kind,
			pattern = EXCLUDED.pattern,
			content_types = EXCLUDED.content_types,
			severity = EXCLUDED.severity,
			updated_at = NOW()
	`

	contentTypes := make([]string, len(rule.ContentTypes))
	for i, ct := range rule.ContentTypes {
		contentTypes[i] = string(ct)
	}

	_, err := r.db.ExecContext(
		ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Enabled,
		string(rule.MatchKind()),
		rule.Pattern,
		pq.Array(contentTypes),
		string(rule.Severity),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	return nil
}
