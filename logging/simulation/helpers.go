package simulation

import (
	"context"

	"prismwell/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a physics step exceeds the tick budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventFieldReset is emitted when the particle field is rebuilt.
	EventFieldReset logging.EventType = "simulation.field_reset"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis float64 `json:"durationMillis"`
	BudgetMillis   float64 `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// TickBudgetOverrun publishes a warning when a physics step overruns its budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindField},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FieldResetPayload captures the outcome of a particle field rebuild.
type FieldResetPayload struct {
	ParticleCount  int    `json:"particleCount"`
	RequestedCount int    `json:"requestedCount,omitempty"`
	Seed           string `json:"seed,omitempty"`
}

// FieldReset publishes an informational event after the field is rebuilt.
func FieldReset(ctx context.Context, pub logging.Publisher, tick uint64, payload FieldResetPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFieldReset,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindField},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
