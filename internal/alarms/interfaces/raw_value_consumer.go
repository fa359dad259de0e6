package interfaces

import (
	"context"
	"errors"
	"time"

	alarmapp "hmi-core/internal/alarms/application"
	"hmi-core/internal/ingest/events"
	"hmi-core/internal/observability/metrics"
)

// RawValueReceivedConsumer adapts raw status-word events into the alarm engine.
type RawValueReceivedConsumer struct {
	engine *alarmapp.Engine
}

// NewRawValueReceivedConsumer constructs a consumer.
func NewRawValueReceivedConsumer(engine *alarmapp.Engine) (*RawValueReceivedConsumer, error) {
	if engine == nil {
		return nil, errors.New("alarms consumer: nil engine")
	}
	return &RawValueReceivedConsumer{engine: engine}, nil
}

// Consume handles a raw value received event.
func (c *RawValueReceivedConsumer) Consume(ctx context.Context, event events.RawValueReceived) error {
	if !event.OccurredAt.IsZero() {
		metrics.ObserveConsumerLag("alarms.raw_value", time.Since(event.OccurredAt))
	}
	return c.engine.Ingest(ctx, event.Identifier, event.RawValue)
}
