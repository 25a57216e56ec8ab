package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlockedOutputMarker replaces the output of every blocked interaction
const BlockedOutputMarker = "⚠️ This interaction was blocked due to policy violation."

// DefaultSource is the source label used when the caller supplies none
const DefaultSource = "Web Interface"

var (
	ErrInvalidContentType = errors.New("invalid content type")
	ErrInvalidSeverity    = errors.New("invalid severity")
	ErrInvalidStatus      = errors.New("invalid incident status")
	ErrInvalidRuleKind    = errors.New("invalid rule kind")
)

// ContentType is the category of payload being validated
type ContentType string

const (
	ContentPrompt     ContentType = "prompt"
	ContentCompletion ContentType = "completion"
	ContentImage      ContentType = "image"
	ContentDocument   ContentType = "document"
	ContentOther      ContentType = "other"
)

// ContentTypes lists every supported content type
var ContentTypes = []ContentType{ContentPrompt, ContentCompletion, ContentImage, ContentDocument, ContentOther}

// ParseContentType converts a raw tag into a ContentType
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !ct.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentType, s)
	}
	return ct, nil
}

func (c ContentType) Valid() bool {
	for _, ct := range ContentTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// Severity is a rule's severity level, ordered low < medium < high < critical
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every level from lowest to highest
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns the position of the level (1 for low ... 4 for critical), 0 if unknown
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity converts a raw string into a Severity
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// RuleKind selects how a rule's pattern is matched
type RuleKind string

const (
	KindRegex     RuleKind = "regex"
	KindKeyword   RuleKind = "keyword"
	KindProfanity RuleKind = "profanity"
)

func (k RuleKind) Valid() bool {
	switch k {
	case "", KindRegex, KindKeyword, KindProfanity:
		return true
	}
	return false
}

// ValidationRule is a named, severity-tagged pattern check scoped to content types
type ValidationRule struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description"`
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Kind         RuleKind      `json:"kind,omitempty" yaml:"kind"` // empty means "regex"
	Pattern      string        `json:"pattern" yaml:"pattern"`
	ContentTypes []ContentType `json:"content_types" yaml:"content_types"`
	Severity     Severity      `json:"severity" yaml:"severity"`
}

// MatchKind returns the effective rule kind
func (r *ValidationRule) MatchKind() RuleKind {
	if r.Kind == "" {
		return KindRegex
	}
	return r.Kind
}

// AppliesTo reports whether the rule is scoped to the given content type
func (r *ValidationRule) AppliesTo(ct ContentType) bool {
	for _, c := range r.ContentTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// Validate checks the rule's fields. The pattern itself is not compiled here.
func (r *ValidationRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule %s: name is required", r.ID)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: %w: %q", r.ID, ErrInvalidSeverity, r.Severity)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("rule %s: %w: %q", r.ID, ErrInvalidRuleKind, r.Kind)
	}
	if r.MatchKind() != KindProfanity && r.Pattern == "" {
		return fmt.Errorf("rule %s: pattern is required", r.ID)
	}
	if len(r.ContentTypes) == 0 {
		return fmt.Errorf("rule %s: at least one content type is required", r.ID)
	}
	for _, ct := range r.ContentTypes {
		if !ct.Valid() {
			return fmt.Errorf("rule %s: %w: %q", r.ID, ErrInvalidContentType, ct)
		}
	}
	return nil
}

// RuleUpdate is a typed partial update of a rule; nil fields are left unchanged
type RuleUpdate struct {
	Name         *string       `json:"name,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Enabled      *bool         `json:"enabled,omitempty"`
	Kind         *RuleKind     `json:"kind,omitempty"`
	Pattern      *string       `json:"pattern,omitempty"`
	ContentTypes []ContentType `json:"content_types,omitempty"`
	Severity     *Severity     `json:"severity,omitempty"`
}

// Apply returns a copy of rule with the update applied
func (u RuleUpdate) Apply(rule ValidationRule) ValidationRule {
	if u.Name != nil {
		rule.Name = *u.Name
	}
	if u.Description != nil {
		rule.Description = *u.Description
	}
	if u.Enabled != nil {
		rule.Enabled = *u.Enabled
	}
	if u.Kind != nil {
		rule.Kind = *u.Kind
	}
	if u.Pattern != nil {
		rule.Pattern = *u.Pattern
	}
	if u.ContentTypes != nil {
		rule.ContentTypes = append([]ContentType(nil), u.ContentTypes...)
	}
	if u.Severity != nil {
		rule.Severity = *u.Severity
	}
	return rule
}

// ValidationResult is the outcome of testing one rule against one content string
type ValidationResult struct {
	Passed    bool            `json:"passed"`
	Rule      *ValidationRule `json:"rule,omitempty"`
	Details   string          `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AIInteraction is one submitted input/output exchange
type AIInteraction struct {
	ID                uuid.UUID          `json:"id"`
	Timestamp         time.Time          `json:"timestamp"`
	Source            string             `json:"source"`
	Input             string             `json:"input"`
	Output            string             `json:"output"`
	ContentType       ContentType        `json:"content_type"`
	ValidationResults []ValidationResult `json:"validation_results"`
	Blocked           bool               `json:"blocked"`
}

// IncidentStatus is the resolution state of an incident
type IncidentStatus string

const (
	StatusOpen          IncidentStatus = "open"
	StatusInvestigating IncidentStatus = "investigating"
	StatusResolved      IncidentStatus = "resolved"
	StatusFalsePositive IncidentStatus = "false-positive"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// IsOpen reports whether the incident counts as open on the dashboard
func (s IncidentStatus) IsOpen() bool {
	return s == StatusOpen || s == StatusInvestigating
}

// IsResolved reports whether the incident counts as resolved on the dashboard
func (s IncidentStatus) IsResolved() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// ParseIncidentStatus converts a raw string into an IncidentStatus
func ParseIncidentStatus(s string) (IncidentStatus, error) {
	st := IncidentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Incident is one policy violation derived from a blocked interaction
type Incident struct {
	ID              uuid.UUID       `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	AIInteractionID uuid.UUID       `json:"ai_interaction_id"`
	Severity        Severity        `json:"severity"`
	Rule            *ValidationRule `json:"rule"`
	Content         string          `json:"content"`
	Status          IncidentStatus  `json:"status"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
}

// TrendPoint is the incident count for one UTC calendar day
type TrendPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// DashboardMetrics is a snapshot derived from interaction and incident history
type DashboardMetrics struct {
	TotalInteractions    int              `json:"total_interactions"`
	BlockedInteractions  int              `json:"blocked_interactions"`
	OpenIncidents        int              `json:"open_incidents"`
	ResolvedIncidents    int              `json:"resolved_incidents"`
	RiskScore            int              `json:"risk_score"`
	ViolationsByRule     map[string]int   `json:"violations_by_rule"`
	ViolationsBySeverity map[Severity]int `json:"violations_by_severity"`
	ViolationsTrend      []TrendPoint     `json:"violations_trend"`
	AsOf                 time.Time        `json:"as_of"`
}

// Policy groups rules for administration
type Policy struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	RuleIDs     []string  `json:"rule_ids" yaml:"rule_ids"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// PolicyUpdate is a typed partial update of a policy
type PolicyUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	RuleIDs     []string `json:"rule_ids,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

// SubmitInteractionRequest is the input for evaluating an interaction
type SubmitInteractionRequest struct {
	Input       string `json:"input" validate:"required"`
	Output      string `json:"output"`
	ContentType string `json:"content_type" validate:"required,oneof=prompt completion image document other"`
	Source      string `json:"source,omitempty" validate:"omitempty,max=128"`
}

// SubmitInteractionResponse is the output of evaluating an interaction
type SubmitInteractionResponse struct {
	Interaction AIInteraction `json:"interaction"`
	Incidents   []Incident    `json:"incidents"`
}

// CreateRuleRequest is the input for adding a rule
type CreateRuleRequest struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name" validate:"required,max=128"`
	Description  string   `json:"description,omitempty"`
	Kind         string   `json:"kind,omitempty" validate:"omitempty,oneof=regex keyword profanity"`
	Pattern      string   `json:"pattern" validate:"required_unless=Kind profanity"`
	ContentTypes []string `json:"content_types" validate:"required,min=1,dive,oneof=prompt completion image document other"`
	Severity     string   `json:"severity" validate:"required,oneof=low medium high critical"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

// UpdateIncidentRequest is the input for changing an incident's status
type UpdateIncidentRequest struct {
	Status          string `json:"status" validate:"required,oneof=open investigating resolved false-positive"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
