package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	variables "hmi-core/internal/variables/domain"
)

// VariableLister loads the variable inventory.
type VariableLister interface {
	List(ctx context.Context) ([]variables.Variable, error)
}

// TopicLister loads the logging topic inventory.
type TopicLister interface {
	List(ctx context.Context) ([]variables.LoggingTopic, error)
}

// ValueReader loads current variable values for label resolution.
type ValueReader interface {
	GetValues(ctx context.Context, names []string) (map[string]string, error)
}

// TopicReader returns the last payload seen on an MQTT topic.
type TopicReader interface {
	Lookup(topic string) (string, bool)
}

// Handler provides variable HTTP endpoints.
type Handler struct {
	vars   VariableLister
	topics TopicLister
	values ValueReader
	mqtt   TopicReader
}

// NewHandler constructs a handler.
func NewHandler(vars VariableLister, topics TopicLister) (*Handler, error) {
	if vars == nil {
		return nil, errors.New("variables handler: nil variable lister")
	}
	return &Handler{vars: vars, topics: topics}, nil
}

// WithLabelSources enables label resolution against the given readers.
func (h *Handler) WithLabelSources(values ValueReader, mqtt TopicReader) *Handler {
	if h == nil {
		return nil
	}
	h.values = values
	h.mqtt = mqtt
	return h
}

// ServeHTTP handles /api/v1/variables, /api/v1/logging-topics and
// /api/v1/labels/resolve.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/variables":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		list, err := h.vars.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []variables.Variable{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	case "/api/v1/logging-topics":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if h.topics == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		list, err := h.topics.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []variables.LoggingTopic{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	case "/api/v1/labels/resolve":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleResolveLabels(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type resolveResponse struct {
	Texts []string `json:"texts"`
}

func (h *Handler) handleResolveLabels(w http.ResponseWriter, r *http.Request) {
	var labels []variables.Label
	if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
		http.Error(w, "invalid labels payload", http.StatusBadRequest)
		return
	}
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		if err := label.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if label.Kind == variables.LabelDynamic {
			names = append(names, label.SourceKey)
		}
	}

	values := map[string]string{}
	if h.values != nil && len(names) > 0 {
		loaded, err := h.values.GetValues(r.Context(), names)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		values = loaded
	}
	variableFn := func(name string) (string, bool) {
		value, ok := values[name]
		return value, ok
	}
	var topicFn func(topic string) (string, bool)
	if h.mqtt != nil {
		topicFn = h.mqtt.Lookup
	}

	resp := resolveResponse{Texts: make([]string, 0, len(labels))}
	for _, label := range labels {
		resp.Texts = append(resp.Texts, label.Resolve(variableFn, topicFn))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
