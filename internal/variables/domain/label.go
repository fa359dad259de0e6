package variables

import "errors"

// LabelKind discriminates label variants.
type LabelKind string

const (
	LabelStatic  LabelKind = "static"
	LabelDynamic LabelKind = "dynamic"
	LabelMqtt    LabelKind = "mqtt"
)

// Label is a display text with exactly one source: fixed text, a named
// variable, or the last payload seen on an MQTT topic.
type Label struct {
	Kind      LabelKind `json:"kind"`
	Value     string    `json:"value,omitempty"`
	SourceKey string    `json:"source_key,omitempty"`
	Topic     string    `json:"topic,omitempty"`
}

// StaticLabel constructs a fixed-text label.
func StaticLabel(value string) Label {
	return Label{Kind: LabelStatic, Value: value}
}

// DynamicLabel constructs a variable-backed label.
func DynamicLabel(sourceKey string) Label {
	return Label{Kind: LabelDynamic, SourceKey: sourceKey}
}

// MqttLabel constructs a topic-backed label.
func MqttLabel(topic string) Label {
	return Label{Kind: LabelMqtt, Topic: topic}
}

// Validate checks that exactly the field for the label's kind is set.
func (l Label) Validate() error {
	switch l.Kind {
	case LabelStatic:
		return nil
	case LabelDynamic:
		if l.SourceKey == "" {
			return errors.New("label: dynamic label without source key")
		}
		return nil
	case LabelMqtt:
		if l.Topic == "" {
			return errors.New("label: mqtt label without topic")
		}
		return nil
	default:
		return errors.New("label: unknown kind")
	}
}

// Resolve returns the display text. Dynamic labels read a variable,
// mqtt labels read the last payload seen on their topic. Unresolvable
// lookups return the empty string rather than an error.
func (l Label) Resolve(variable func(name string) (string, bool), topic func(topic string) (string, bool)) string {
	switch l.Kind {
	case LabelStatic:
		return l.Value
	case LabelDynamic:
		if variable == nil {
			return ""
		}
		value, ok := variable(l.SourceKey)
		if !ok {
			return ""
		}
		return value
	case LabelMqtt:
		if topic == nil {
			return ""
		}
		value, ok := topic(l.Topic)
		if !ok {
			return ""
		}
		return value
	default:
		return ""
	}
}
