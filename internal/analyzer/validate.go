package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/interaction-monitor/internal/metrics"
	"github.com/interaction-monitor/internal/notify"
	"github.com/interaction-monitor/pkg/models"
)

// ValidateContent applies every enabled rule scoped to contentType, in rule
// store order. Rules that fail to compile or time out produce no result and
// are reported to the notifier instead.
func (a *Analyzer) ValidateContent(ctx context.Context, content string, contentType models.ContentType) ([]models.ValidationResult, error) {
	if !contentType.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidContentType, contentType)
	}
	return a.validate(ctx, a.rules.Rules(), content, contentType), nil
}

// EvaluateInteraction validates input and output, applies the blocking policy
// and redacts the output of a blocked interaction. The input is kept verbatim.
func (a *Analyzer) EvaluateInteraction(ctx context.Context, input, output string, contentType models.ContentType, source string) (*models.AIInteraction, error) {
	if !contentType.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidContentType, contentType)
	}
	if source == "" {
		source = models.DefaultSource
	}

	// One snapshot for both sides so a concurrent toggle cannot split them
	rules := a.rules.Rules()
	inputResults := a.validate(ctx, rules, input, contentType)
	outputResults := a.validate(ctx, rules, output, contentType)

	results := make([]models.ValidationResult, 0, len(inputResults)+len(outputResults))
	results = append(results, inputResults...)
	results = append(results, outputResults...)

	blocked := ShouldBlock(results, a.blockThreshold)

	interaction := &models.AIInteraction{
		ID:                uuid.New(),
		Timestamp:         a.now(),
		Source:            source,
		Input:             input,
		Output:            output,
		ContentType:       contentType,
		ValidationResults: results,
		Blocked:           blocked,
	}
	if blocked {
		interaction.Output = models.BlockedOutputMarker
	}
	return interaction, nil
}

// ShouldBlock reports whether any failed result carries a rule at or above threshold
func ShouldBlock(results []models.ValidationResult, threshold models.Severity) bool {
	for _, r := range results {
		if r.Passed || r.Rule == nil {
			continue
		}
		if r.Rule.Severity.Rank() >= threshold.Rank() {
			return true
		}
	}
	return false
}

func (a *Analyzer) validate(ctx context.Context, rules []*models.ValidationRule, content string, contentType models.ContentType) []models.ValidationResult {
	timestamp := a.now()
	results := make([]models.ValidationResult, 0, len(rules))

	for _, rule := range rules {
		if !rule.Enabled || !rule.AppliesTo(contentType) {
			continue
		}

		matched, err := a.Match(rule, content)
		if err != nil {
			a.reportRuleError(ctx, rule, err)
			continue
		}

		if matched {
			metrics.RuleViolationsTotal.WithLabelValues(string(rule.Severity)).Inc()
			results = append(results, models.ValidationResult{
				Passed:    false,
				Rule:      rule,
				Details:   fmt.Sprintf("Content violates rule: %s", rule.Name),
				Timestamp: timestamp,
			})
			continue
		}

		results = append(results, models.ValidationResult{
			Passed:    true,
			Rule:      rule,
			Timestamp: timestamp,
		})
	}

	return results
}

func (a *Analyzer) reportRuleError(ctx context.Context, rule *models.ValidationRule, err error) {
	reason := "compile"
	var timeoutErr *MatchTimeoutError
	if errors.As(err, &timeoutErr) {
		reason = "timeout"
	}
	metrics.RuleErrorsTotal.WithLabelValues(reason).Inc()

	a.logger.Warnf("⚠️  Skipping rule %s: %v", rule.ID, err)

	event := notify.Warning(notify.KindRuleError, "Validation Error", "Failed to apply rule: %s", rule.Name)
	event.RuleID = rule.ID
	a.notifier.Notify(ctx, event)
}
