package interfaces

import (
	"context"
	"errors"
	"time"

	"hmi-core/internal/ingest/events"
	"hmi-core/internal/observability/metrics"
	ruleapp "hmi-core/internal/rules/application"
)

// VariableChangedConsumer adapts variable change events into the rule engine.
type VariableChangedConsumer struct {
	engine *ruleapp.Engine
}

// NewVariableChangedConsumer constructs a consumer.
func NewVariableChangedConsumer(engine *ruleapp.Engine) (*VariableChangedConsumer, error) {
	if engine == nil {
		return nil, errors.New("rules consumer: nil engine")
	}
	return &VariableChangedConsumer{engine: engine}, nil
}

// Consume handles a variable changed event.
func (c *VariableChangedConsumer) Consume(ctx context.Context, event events.VariableChanged) error {
	if !event.OccurredAt.IsZero() {
		metrics.ObserveConsumerLag("rules.variable_changed", time.Since(event.OccurredAt))
	}
	return c.engine.OnVariableChanged(ctx, event)
}
