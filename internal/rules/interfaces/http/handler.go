package http

import (
	"encoding/json"
	"errors"
	"net/http"

	ruleapp "hmi-core/internal/rules/application"
	rules "hmi-core/internal/rules/domain"
)

// Handler provides rule HTTP endpoints.
type Handler struct {
	engine *ruleapp.Engine
}

// NewHandler constructs a handler.
func NewHandler(engine *ruleapp.Engine) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("rules handler: nil engine")
	}
	return &Handler{engine: engine}, nil
}

// ServeHTTP handles /api/v1/rules.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/rules" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPut:
		h.handleReplace(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	list := h.engine.Rules()
	if list == nil {
		list = []rules.Rule{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	var list []rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		http.Error(w, "invalid rule payload", http.StatusBadRequest)
		return
	}
	if err := h.engine.SaveRules(r.Context(), list); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.engine.Rules())
}
