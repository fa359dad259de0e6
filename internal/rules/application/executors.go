package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"hmi-core/internal/ingest/events"
	rules "hmi-core/internal/rules/domain"
)

// VisibilityWriter switches the visibility flag of a UI element variable.
type VisibilityWriter interface {
	SetVisibility(ctx context.Context, name string, visible bool) error
}

// LoggingWriter switches recording for one logging topic.
type LoggingWriter interface {
	SetLoggingEnabled(ctx context.Context, topic string, enabled bool) error
}

// ValueWriter stores a variable value.
type ValueWriter interface {
	SetValue(ctx context.Context, name, value string) error
}

// EventPublisher publishes outbound integration events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// VisibilityExecutor applies set_visibility actions.
type VisibilityExecutor struct {
	writer VisibilityWriter
}

// NewVisibilityExecutor constructs a visibility executor.
func NewVisibilityExecutor(writer VisibilityWriter) (*VisibilityExecutor, error) {
	if writer == nil {
		return nil, errors.New("visibility executor: nil writer")
	}
	return &VisibilityExecutor{writer: writer}, nil
}

// Execute implements ActionExecutor.
func (x *VisibilityExecutor) Execute(ctx context.Context, action rules.Action) error {
	visible, err := strconv.ParseBool(action.Value)
	if err != nil {
		return fmt.Errorf("visibility executor: value %q is not a boolean", action.Value)
	}
	return x.writer.SetVisibility(ctx, action.Target, visible)
}

// LoggingExecutor applies set_logging_enabled actions.
type LoggingExecutor struct {
	writer LoggingWriter
}

// NewLoggingExecutor constructs a logging executor.
func NewLoggingExecutor(writer LoggingWriter) (*LoggingExecutor, error) {
	if writer == nil {
		return nil, errors.New("logging executor: nil writer")
	}
	return &LoggingExecutor{writer: writer}, nil
}

// Execute implements ActionExecutor.
func (x *LoggingExecutor) Execute(ctx context.Context, action rules.Action) error {
	enabled, err := strconv.ParseBool(action.Value)
	if err != nil {
		return fmt.Errorf("logging executor: value %q is not a boolean", action.Value)
	}
	return x.writer.SetLoggingEnabled(ctx, action.Target, enabled)
}

// SetValueExecutor applies set_value actions and republishes the change
// so dependent rules re-evaluate.
type SetValueExecutor struct {
	writer    ValueWriter
	publisher EventPublisher
}

// NewSetValueExecutor constructs a set-value executor.
func NewSetValueExecutor(writer ValueWriter, publisher EventPublisher) (*SetValueExecutor, error) {
	if writer == nil {
		return nil, errors.New("set value executor: nil writer")
	}
	return &SetValueExecutor{writer: writer, publisher: publisher}, nil
}

// Execute implements ActionExecutor.
func (x *SetValueExecutor) Execute(ctx context.Context, action rules.Action) error {
	if err := x.writer.SetValue(ctx, action.Target, action.Value); err != nil {
		return err
	}
	if x.publisher == nil {
		return nil
	}
	return x.publisher.Publish(ctx, events.VariableChanged{
		Name:       action.Target,
		Value:      action.Value,
		OccurredAt: time.Now().UTC(),
	})
}
