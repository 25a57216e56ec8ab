package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/interaction-monitor/internal/notify"
	"github.com/interaction-monitor/pkg/models"
	"go.uber.org/zap"
)

// Deriver turns blocked interactions into incidents
type Deriver struct {
	notifier notify.Notifier
	logger   *zap.SugaredLogger
}

// NewDeriver creates a Deriver. A nil notifier or logger discards warnings.
func NewDeriver(notifier notify.Notifier, logger *zap.SugaredLogger) *Deriver {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Deriver{notifier: notifier, logger: logger}
}

// Derive emits one open incident per failed, rule-bearing result of a blocked
// interaction, in result order. Results for the same rule are not merged.
// Interactions that were not blocked yield no incidents.
func (d *Deriver) Derive(ctx context.Context, interaction *models.AIInteraction) []models.Incident {
	if interaction == nil || !interaction.Blocked {
		return nil
	}

	var incidents []models.Incident
	for _, result := range interaction.ValidationResults {
		if result.Passed || result.Rule == nil {
			continue
		}
		incidents = append(incidents, models.Incident{
			ID:              uuid.New(),
			Timestamp:       interaction.Timestamp,
			AIInteractionID: interaction.ID,
			Severity:        result.Rule.Severity,
			Rule:            result.Rule,
			Content:         interaction.Input,
			Status:          models.StatusOpen,
		})
	}

	if len(incidents) == 0 {
		d.logger.Warnf("⚠️  Interaction %s was blocked but no failing rule was recorded", interaction.ID)
		d.notifier.Notify(ctx, notify.Warning(
			notify.KindDerivationGap,
			"Incident Derivation",
			"Blocked interaction %s produced no incident", interaction.ID,
		))
	}
	return incidents
}

// ApplyStatus sets the status and resolution notes of an incident. Any status
// may follow any other; only the value itself is checked.
func ApplyStatus(inc *models.Incident, status models.IncidentStatus, notes string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}
	inc.Status = status
	inc.ResolutionNotes = notes
	return nil
}

// StatusChanged builds the notification for an incident status update
func StatusChanged(inc models.Incident) notify.Event {
	return notify.Event{
		Kind:    notify.KindIncidentUpdated,
		Level:   notify.LevelInfo,
		Title:   "Incident Updated",
		Message: fmt.Sprintf("Incident status changed to %s", inc.Status),
		RuleID:  ruleID(inc),
		Time:    time.Now().UTC(),
	}
}

func ruleID(inc models.Incident) string {
	if inc.Rule == nil {
		return ""
	}
	return inc.Rule.ID
}
