package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hmi-core/internal/ingest/events"
)

func TestSendAcknowledge(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret-token")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	at := time.Date(2026, time.August, 31, 10, 0, 0, 0, time.UTC)
	resp, err := client.SendAcknowledge(context.Background(), "operator-1", at)
	if err != nil {
		t.Fatalf("send acknowledge: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %q", resp.Status)
	}
	if gotPath != "/api/v1/alarms/acknowledge" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["requested_by"] != "operator-1" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if gotBody["requested_at"] != "2026-08-31T10:00:00Z" {
		t.Fatalf("unexpected timestamp %v", gotBody["requested_at"])
	}
}

func TestSendAcknowledgeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.SendAcknowledge(context.Background(), "operator-1", time.Now()); err == nil {
		t.Fatal("expected error for http 502")
	}
}

func TestAckForwarderGatewayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed", "error": "plc offline"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	forwarder, err := NewAckForwarder(client, nil)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	evt := events.AcknowledgeRequested{RequestedBy: "operator-1", OccurredAt: time.Now().UTC()}
	if err := forwarder.HandleAcknowledgeRequested(context.Background(), evt); err == nil {
		t.Fatal("expected error when gateway reports failure")
	}
}

func TestAckForwarderIgnoresForeignEvents(t *testing.T) {
	forwarder, err := NewAckForwarder(&Client{}, nil)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	if err := forwarder.HandleAcknowledgeRequested(context.Background(), "not an event"); err != nil {
		t.Fatalf("expected nil for unrelated event, got %v", err)
	}
}
