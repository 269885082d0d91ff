package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/mqtt2graphite/internal/bridge"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2graphite/internal/journal"
)

type fakeStatus struct {
	state bridge.ConnectionState
	stats bridge.Stats
}

func (f *fakeStatus) State() bridge.ConnectionState { return f.state }
func (f *fakeStatus) Stats() bridge.Stats           { return f.stats }

type fakeEvents struct {
	events    []journal.Event
	err       error
	lastLimit int
}

func (f *fakeEvents) Recent(_ context.Context, limit int) ([]journal.Event, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeBroker struct {
	err error
}

func (f *fakeBroker) HealthCheck(context.Context) error { return f.err }

// testServer creates a Server backed by fakes. events may be nil.
func testServer(t *testing.T, status *fakeStatus, events EventSource) *Server {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config:   config.StatusConfig{Enabled: true, Host: "127.0.0.1", Port: 0},
		Logger:   log,
		Status:   status,
		Events:   events,
		ClientID: "MQTT2Graphite_42-host",
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestNew_MissingDeps(t *testing.T) {
	log := logging.Default()
	if _, err := New(Deps{Status: &fakeStatus{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without status source should fail")
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		state      bridge.ConnectionState
		wantStatus int
	}{
		{bridge.StateConnected, http.StatusOK},
		{bridge.StateConnecting, http.StatusServiceUnavailable},
		{bridge.StateDisconnected, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			srv := testServer(t, &fakeStatus{state: tt.state}, nil)
			rec := get(t, srv, "/healthz")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			decode(t, rec, &body)
			if body["state"] != tt.state.String() {
				t.Errorf("state = %q, want %q", body["state"], tt.state.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}
}

func TestHandleHealth_BrokerCheck(t *testing.T) {
	tests := []struct {
		name       string
		state      bridge.ConnectionState
		brokerErr  error
		wantStatus int
		wantBroker string
	}{
		{"connected and alive", bridge.StateConnected, nil, http.StatusOK, "ok"},
		{"connected but transport down", bridge.StateConnected, errors.New("not connected to MQTT broker"), http.StatusServiceUnavailable, "not connected to MQTT broker"},
		{"disconnected", bridge.StateDisconnected, nil, http.StatusServiceUnavailable, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, &fakeStatus{state: tt.state}, nil)
			srv.broker = &fakeBroker{err: tt.brokerErr}
			rec := get(t, srv, "/healthz")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			decode(t, rec, &body)
			if body["broker"] != tt.wantBroker {
				t.Errorf("broker = %q, want %q", body["broker"], tt.wantBroker)
			}
		})
	}
}

func TestRequestID_Propagated(t *testing.T) {
	srv := testServer(t, &fakeStatus{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestHandleStats(t *testing.T) {
	status := &fakeStatus{
		state: bridge.StateConnected,
		stats: bridge.Stats{Messages: 10, LinesWritten: 42, DecodeFailures: 1, FlushFailures: 2, Reconnects: 3},
	}
	srv := testServer(t, status, nil)
	rec := get(t, srv, "/api/v1/stats")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body statsResponse
	decode(t, rec, &body)

	want := statsResponse{
		ClientID:       "MQTT2Graphite_42-host",
		State:          "connected",
		Version:        "test",
		UptimeSeconds:  body.UptimeSeconds,
		Messages:       10,
		LinesWritten:   42,
		DecodeFailures: 1,
		FlushFailures:  2,
		Reconnects:     3,
	}
	if body != want {
		t.Errorf("stats = %+v, want %+v", body, want)
	}
}

func TestHandleEvents(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	events := &fakeEvents{events: []journal.Event{
		{ID: 2, ClientID: "c", Kind: journal.KindShutdown, OccurredAt: at},
		{ID: 1, ClientID: "c", Kind: journal.KindDisconnected, Detail: "EOF", OccurredAt: at.Add(-time.Minute)},
	}}
	srv := testServer(t, &fakeStatus{}, events)

	rec := get(t, srv, "/api/v1/events?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if events.lastLimit != 5 {
		t.Errorf("limit passed = %d, want 5", events.lastLimit)
	}

	var body struct {
		Events []eventResponse `json:"events"`
		Count  int             `json:"count"`
	}
	decode(t, rec, &body)
	if body.Count != 2 || len(body.Events) != 2 {
		t.Fatalf("count = %d, events = %d, want 2", body.Count, len(body.Events))
	}
	if body.Events[0].Kind != "shutdown" || !body.Events[0].OccurredAt.Equal(at) {
		t.Errorf("first event = %+v", body.Events[0])
	}
	if body.Events[1].Detail != "EOF" {
		t.Errorf("second event detail = %q, want EOF", body.Events[1].Detail)
	}
}

func TestHandleEvents_Limits(t *testing.T) {
	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, defaultEventLimit},
		{"?limit=100000", http.StatusOK, maxEventLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=-3", http.StatusBadRequest, 0},
		{"?limit=ten", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			events := &fakeEvents{}
			srv := testServer(t, &fakeStatus{}, events)
			rec := get(t, srv, "/api/v1/events"+tt.query)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if events.lastLimit != tt.wantLimit {
				t.Errorf("limit passed = %d, want %d", events.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestHandleEvents_JournalDisabled(t *testing.T) {
	srv := testServer(t, &fakeStatus{}, nil)
	rec := get(t, srv, "/api/v1/events")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	var body Error
	decode(t, rec, &body)
	if body.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeNotFound)
	}
}

func TestHandleEvents_StoreError(t *testing.T) {
	srv := testServer(t, &fakeStatus{}, &fakeEvents{err: errors.New("database is locked")})
	rec := get(t, srv, "/api/v1/events")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv := testServer(t, &fakeStatus{state: bridge.StateConnected}, nil)

	if err := srv.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close()

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", srv.Addr()))
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_CloseNotStarted(t *testing.T) {
	srv := testServer(t, &fakeStatus{}, nil)
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if srv.Addr() != nil {
		t.Error("Addr() before Start should be nil")
	}
}
