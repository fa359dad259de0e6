package ingest

import (
	"context"
	"errors"
	"time"

	"hmi-core/internal/ingest/events"
)

// EventPublisher publishes inbound events into the core.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// RawPayload is the wire form of one packed status word.
type RawPayload struct {
	Identifier string `json:"identifier"`
	RawValue   int64  `json:"raw_value"`
	TS         int64  `json:"ts"`
}

// ToEvent validates the payload and converts it to an event.
func (p RawPayload) ToEvent(now time.Time) (events.RawValueReceived, error) {
	if p.Identifier == "" {
		return events.RawValueReceived{}, errors.New("ingest: missing identifier")
	}
	if p.RawValue < 0 || p.RawValue > 0xFFFF {
		return events.RawValueReceived{}, errors.New("ingest: raw value out of 16-bit range")
	}
	occurredAt, err := parseTimestamp(p.TS, now)
	if err != nil {
		return events.RawValueReceived{}, err
	}
	return events.RawValueReceived{
		Identifier: p.Identifier,
		RawValue:   p.RawValue,
		OccurredAt: occurredAt,
	}, nil
}

// VariablePayload is the wire form of one variable change.
type VariablePayload struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	TS    int64  `json:"ts"`
}

// ToEvent validates the payload and converts it to an event.
func (p VariablePayload) ToEvent(now time.Time) (events.VariableChanged, error) {
	if p.Name == "" {
		return events.VariableChanged{}, errors.New("ingest: missing variable name")
	}
	occurredAt, err := parseTimestamp(p.TS, now)
	if err != nil {
		return events.VariableChanged{}, err
	}
	return events.VariableChanged{
		Name:       p.Name,
		Value:      p.Value,
		OccurredAt: occurredAt,
	}, nil
}

// parseTimestamp accepts milliseconds or seconds; zero means now.
func parseTimestamp(value int64, now time.Time) (time.Time, error) {
	if value == 0 {
		return now.UTC(), nil
	}
	if value < 0 {
		return time.Time{}, errors.New("ingest: invalid ts")
	}
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), nil
	}
	return time.Unix(value, 0).UTC(), nil
}
