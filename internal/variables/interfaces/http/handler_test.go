package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	variables "hmi-core/internal/variables/domain"
)

type stubVariableLister struct {
	list []variables.Variable
}

func (s *stubVariableLister) List(_ context.Context) ([]variables.Variable, error) {
	return s.list, nil
}

func (s *stubVariableLister) GetValues(_ context.Context, names []string) (map[string]string, error) {
	values := make(map[string]string)
	for _, v := range s.list {
		for _, name := range names {
			if v.Name == name {
				values[name] = v.Value
			}
		}
	}
	return values, nil
}

type stubTopicStore struct {
	payloads map[string]string
}

func (s *stubTopicStore) Lookup(topic string) (string, bool) {
	value, ok := s.payloads[topic]
	return value, ok
}

func TestListVariables(t *testing.T) {
	lister := &stubVariableLister{list: []variables.Variable{{Name: "pump1_state", Value: "on", Visible: true}}}
	handler, err := NewHandler(lister, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/variables", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got []variables.Variable
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "pump1_state" {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestResolveLabels(t *testing.T) {
	lister := &stubVariableLister{list: []variables.Variable{{Name: "boiler_name", Value: "Boiler West"}}}
	handler, err := NewHandler(lister, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	handler.WithLabelSources(lister, &stubTopicStore{payloads: map[string]string{"hmi/labels/room": "Pump Room"}})

	body := `[
		{"kind":"static","value":"Overview"},
		{"kind":"dynamic","source_key":"boiler_name"},
		{"kind":"mqtt","topic":"hmi/labels/room"},
		{"kind":"dynamic","source_key":"missing"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/labels/resolve", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var got resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"Overview", "Boiler West", "Pump Room", ""}
	if len(got.Texts) != len(want) {
		t.Fatalf("expected %d texts, got %d", len(want), len(got.Texts))
	}
	for i := range want {
		if got.Texts[i] != want[i] {
			t.Fatalf("text %d: expected %q, got %q", i, want[i], got.Texts[i])
		}
	}
}

func TestResolveLabelsRejectsInvalid(t *testing.T) {
	lister := &stubVariableLister{}
	handler, err := NewHandler(lister, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/labels/resolve", strings.NewReader(`[{"kind":"dynamic"}]`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
