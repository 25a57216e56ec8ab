package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/interaction-monitor/internal/analyzer"
	"github.com/interaction-monitor/internal/history"
	"github.com/interaction-monitor/internal/monitor"
	"github.com/interaction-monitor/internal/notify"
	"github.com/interaction-monitor/internal/policy"
	"github.com/interaction-monitor/pkg/models"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// RuleWriter applies a rule change and writes the result through to storage
// as one step
type RuleWriter interface {
	WriteRule(ctx context.Context, change func() (models.ValidationRule, error)) (models.ValidationRule, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service  *monitor.Service
	store    *policy.Store
	analyzer *analyzer.Analyzer
	rules    RuleWriter
	notifier notify.Notifier
	logger   *zap.SugaredLogger
	validate *validator.Validate
}

// NewHandler creates a new Handler with all dependencies. rules and notifier may be nil.
func NewHandler(service *monitor.Service, store *policy.Store, a *analyzer.Analyzer, rules RuleWriter, notifier notify.Notifier, logger *zap.SugaredLogger) *Handler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		service:  service,
		store:    store,
		analyzer: a,
		rules:    rules,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
	}
}

// HandleSubmitInteraction evaluates an interaction against the rule set
// POST /v1/interactions
func (h *Handler) HandleSubmitInteraction(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitInteractionRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Submit(r.Context(), req.Input, req.Output, req.ContentType, req.Source)
	if err != nil {
		if errors.Is(err, models.ErrInvalidContentType) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Errorf("Error submitting interaction: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to process the AI interaction")
		return
	}

	incidents := result.Incidents
	if incidents == nil {
		incidents = []models.Incident{}
	}
	respondJSON(w, http.StatusOK, models.SubmitInteractionResponse{
		Interaction: result.Interaction,
		Incidents:   incidents,
	})
}

// HandleListInteractions returns the interaction history, newest first
// GET /v1/interactions?search=&blocked=&content_type=
func (h *Handler) HandleListInteractions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := history.InteractionFilter{Search: q.Get("search")}

	if raw := q.Get("blocked"); raw != "" {
		blocked, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "blocked must be true or false")
			return
		}
		filter.Blocked = &blocked
	}
	if raw := q.Get("content_type"); raw != "" {
		ct, err := models.ParseContentType(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.ContentType = ct
	}

	respondJSON(w, http.StatusOK, h.service.Interactions(filter))
}

// HandleListIncidents returns incidents, newest first
// GET /v1/incidents?status=&severity=
func (h *Handler) HandleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter history.IncidentFilter

	if raw := q.Get("status"); raw != "" {
		status, err := models.ParseIncidentStatus(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	if raw := q.Get("severity"); raw != "" {
		severity, err := models.ParseSeverity(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Severity = severity
	}

	respondJSON(w, http.StatusOK, h.service.Incidents(filter))
}

// HandleUpdateIncident changes an incident's status
// PATCH /v1/incidents/{id}
func (h *Handler) HandleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	var req models.UpdateIncidentRequest
	if !h.decode(w, r, &req) {
		return
	}

	inc, err := h.service.UpdateIncidentStatus(r.Context(), id, req.Status, req.ResolutionNotes)
	switch {
	case errors.Is(err, history.ErrIncidentNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, models.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Errorf("Error updating incident %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to update incident")
		return
	}

	respondJSON(w, http.StatusOK, inc)
}

// HandleListRules returns the rule set in evaluation order
// GET /v1/rules?search=
func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.store.Search(r.URL.Query().Get("search"))
	if rules == nil {
		rules = []models.ValidationRule{}
	}
	respondJSON(w, http.StatusOK, rules)
}

// HandleCreateRule appends a rule to the rule set
// POST /v1/rules
func (h *Handler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRuleRequest
	if !h.decode(w, r, &req) {
		return
	}

	rule := models.ValidationRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     true,
		Kind:        models.RuleKind(req.Kind),
		Pattern:     req.Pattern,
		Severity:    models.Severity(req.Severity),
	}
	if rule.ID == "" {
		rule.ID = "rule-" + uuid.NewString()
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	for _, ct := range req.ContentTypes {
		rule.ContentTypes = append(rule.ContentTypes, models.ContentType(ct))
	}

	if err := h.analyzer.CheckPattern(rule.MatchKind(), rule.Pattern); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.writeRule(r.Context(), func() (models.ValidationRule, error) {
		return rule, h.store.Add(rule)
	}); err != nil {
		if errors.Is(err, policy.ErrDuplicateRule) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.ruleChanged(r.Context(), rule, "created")
	respondJSON(w, http.StatusCreated, rule)
}

// HandleUpdateRule applies a partial update to a rule
// PUT /v1/rules/{id}
func (h *Handler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var update models.RuleUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	current, err := h.store.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	candidate := update.Apply(current)
	if err := h.analyzer.CheckPattern(candidate.MatchKind(), candidate.Pattern); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.writeRule(r.Context(), func() (models.ValidationRule, error) {
		return h.store.Update(id, update)
	})
	switch {
	case errors.Is(err, policy.ErrRuleNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.ruleChanged(r.Context(), rule, "updated")
	respondJSON(w, http.StatusOK, rule)
}

// HandleToggleRule flips a rule's enabled flag
// POST /v1/rules/{id}/toggle
func (h *Handler) HandleToggleRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rule, err := h.writeRule(r.Context(), func() (models.ValidationRule, error) {
		return h.store.Toggle(id)
	})
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.ruleChanged(r.Context(), rule, "toggled")
	respondJSON(w, http.StatusOK, rule)
}

// HandleListPolicies returns the configured policies
// GET /v1/policies
func (h *Handler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Policies())
}

// HandleUpdatePolicy applies a partial update to a policy
// PUT /v1/policies/{id}
func (h *Handler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var update models.PolicyUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	p, err := h.store.UpdatePolicy(r.PathValue("id"), update)
	switch {
	case errors.Is(err, policy.ErrPolicyNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.notifier.Notify(r.Context(), notify.Event{
		Kind:    notify.KindRuleUpdated,
		Level:   notify.LevelInfo,
		Title:   "Policy Updated",
		Message: fmt.Sprintf("Policy %q has been updated", p.Name),
		Time:    time.Now().UTC(),
	})
	respondJSON(w, http.StatusOK, p)
}

// HandleDashboard returns the dashboard metrics as of now
// GET /v1/dashboard
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.CurrentMetrics())
}

// HandleHealth returns service health status
// GET /v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	}

	respondJSON(w, http.StatusOK, response)
}

// writeRule runs a store mutation through the rule writer when one is configured
func (h *Handler) writeRule(ctx context.Context, change func() (models.ValidationRule, error)) (models.ValidationRule, error) {
	if h.rules == nil {
		return change()
	}
	return h.rules.WriteRule(ctx, change)
}

// ruleChanged tells the operator about a rule edit
func (h *Handler) ruleChanged(ctx context.Context, rule models.ValidationRule, action string) {
	h.notifier.Notify(ctx, notify.Event{
		Kind:    notify.KindRuleUpdated,
		Level:   notify.LevelInfo,
		Title:   "Rule Updated",
		Message: fmt.Sprintf("Validation rule %q %s", rule.Name, action),
		RuleID:  rule.ID,
		Time:    time.Now().UTC(),
	})
}

// Helper functions

// decode parses and validates a JSON body, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Debugf("Error decoding JSON: %v", err)
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage turns validator errors into a readable message
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
