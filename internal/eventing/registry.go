package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Registry turns outbox envelopes back into the concrete ingest events
// (raw status words, variable changes, acknowledge requests) that the
// alarm and rule consumers expect. Envelopes carry only the
// fully-qualified type name, so every event type crossing the outbox
// must be registered at wiring time.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]func() any
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]func() any)}
}

// Register adds decoders for the given event samples (values or
// pointers). Later registrations for the same type win.
func (r *Registry) Register(samples ...any) {
	if r == nil {
		return
	}
	for _, sample := range samples {
		if sample == nil {
			continue
		}
		t := reflect.TypeOf(sample)
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		r.mu.Lock()
		r.decoders[t.String()] = func() any {
			return reflect.New(t).Interface()
		}
		r.mu.Unlock()
	}
}

// DecodePayload rebuilds the concrete event carried by an envelope.
// Unregistered types are an error so the dispatcher can dead-letter
// them instead of silently dropping the payload.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	decoder := r.decoders[env.EventType]
	r.mu.RUnlock()
	if decoder == nil {
		return nil, fmt.Errorf("eventing: no decoder registered for %q", env.EventType)
	}
	target := decoder()
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("eventing: decode %s: %w", env.EventType, err)
	}
	value := reflect.ValueOf(target)
	if value.Kind() == reflect.Ptr && !value.IsNil() {
		return value.Elem().Interface(), nil
	}
	return target, nil
}
