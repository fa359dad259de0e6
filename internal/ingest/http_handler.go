package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPHandler ingests raw words and variable changes over HTTP.
type HTTPHandler struct {
	publisher EventPublisher
	logger    *log.Logger
}

// NewHTTPHandler constructs an ingest HTTP handler.
func NewHTTPHandler(publisher EventPublisher, logger *log.Logger) (*HTTPHandler, error) {
	if publisher == nil {
		return nil, errors.New("ingest http: nil publisher")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPHandler{publisher: publisher, logger: logger}, nil
}

// ServeHTTP handles /ingest/v1/raw and /ingest/v1/variables.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/ingest/v1/raw":
		h.handleRaw(w, r)
	case "/ingest/v1/variables":
		h.handleVariable(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *HTTPHandler) handleRaw(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	payloads, err := decodeBatch[RawPayload](body)
	if err != nil {
		h.logger.Printf("ingest http: decode raw error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	accepted := 0
	now := time.Now()
	for _, payload := range payloads {
		event, err := payload.ToEvent(now)
		if err != nil {
			h.logger.Printf("ingest http: invalid raw payload: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.publisher.Publish(r.Context(), event); err != nil {
			h.logger.Printf("ingest http: publish error: %v", err)
			http.Error(w, "publish error", http.StatusInternalServerError)
			return
		}
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"accepted": accepted})
}

func (h *HTTPHandler) handleVariable(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	payloads, err := decodeBatch[VariablePayload](body)
	if err != nil {
		h.logger.Printf("ingest http: decode variable error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	accepted := 0
	now := time.Now()
	for _, payload := range payloads {
		event, err := payload.ToEvent(now)
		if err != nil {
			h.logger.Printf("ingest http: invalid variable payload: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.publisher.Publish(r.Context(), event); err != nil {
			h.logger.Printf("ingest http: publish error: %v", err)
			http.Error(w, "publish error", http.StatusInternalServerError)
			return
		}
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"accepted": accepted})
}

// decodeBatch accepts a single object or an array of objects.
func decodeBatch[T any](body []byte) ([]T, error) {
	var list []T
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var single T
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []T{single}, nil
}
