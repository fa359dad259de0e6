package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	alarmapp "hmi-core/internal/alarms/application"
	"hmi-core/internal/alarms/interfaces"
	"hmi-core/internal/auth"
	"hmi-core/internal/observability/metrics"
)

// Handler provides alarm HTTP endpoints.
type Handler struct {
	engine *alarmapp.Engine
}

// NewHandler constructs a handler.
func NewHandler(engine *alarmapp.Engine) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("alarms handler: nil engine")
	}
	return &Handler{engine: engine}, nil
}

// ServeHTTP handles /api/v1/alarms subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/alarms/active":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleActive(w, r)
	case "/api/v1/alarms/history":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleHistory(w, r)
	case "/api/v1/alarms/history/export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r)
	case "/api/v1/alarms/acknowledge":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAcknowledge(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleActive(w http.ResponseWriter, _ *http.Request) {
	response := struct {
		Active   []any `json:"active"`
		Severity int   `json:"severity"`
	}{Active: []any{}, Severity: h.engine.FooterSeverity()}
	for _, alarm := range h.engine.ActiveAlarms() {
		response.Active = append(response.Active, alarm)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePageQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := h.engine.History(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	limit, offset, err := parsePageQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	entries, err := h.engine.History(r.Context(), limit, offset)
	if err != nil {
		metrics.ObserveHistoryExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var (
		payload     []byte
		contentType string
		filename    string
	)
	switch format {
	case "xlsx":
		payload, err = interfaces.BuildHistoryXLSX(entries, time.Now().UTC())
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "alarm-history.xlsx"
	case "pdf":
		payload, err = interfaces.BuildHistoryPDF(entries, time.Now().UTC())
		contentType = "application/pdf"
		filename = "alarm-history.pdf"
	default:
		http.Error(w, "format must be xlsx or pdf", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.ObserveHistoryExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveHistoryExport(format, metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	_, _ = w.Write(payload)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	requestedBy := auth.SubjectFromContext(r.Context())
	entry, err := h.engine.Acknowledge(r.Context(), requestedBy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(entry)
}

func parsePageQuery(r *http.Request) (int, int, error) {
	limit := 50
	offset := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, 0, errors.New("limit must be an integer")
		}
		limit = parsed
	}
	if value := r.URL.Query().Get("offset"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, 0, errors.New("offset must be an integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}
