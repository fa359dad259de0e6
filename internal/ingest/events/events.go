package events

import "time"

// RawValueReceived carries one packed 16-bit status word for a channel.
type RawValueReceived struct {
	Identifier string    `json:"identifier"`
	RawValue   int64     `json:"raw_value"`
	OccurredAt time.Time `json:"occurred_at"`
}

// VariableChanged carries a named-variable value change.
type VariableChanged struct {
	Name       string    `json:"name"`
	Value      string    `json:"value"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AcknowledgeRequested asks the upstream system to clear latched alarm bits.
type AcknowledgeRequested struct {
	RequestedBy string    `json:"requested_by"`
	OccurredAt  time.Time `json:"occurred_at"`
}
