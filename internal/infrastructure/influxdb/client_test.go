package influxdb_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt2graphite/internal/telemetry"
)

// fakeServer records write requests and answers pings.
type fakeServer struct {
	*httptest.Server

	mu          sync.Mutex
	writes      []string
	queries     []string
	writeStatus int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{writeStatus: http.StatusNoContent}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			s.mu.Lock()
			s.writes = append(s.writes, string(body))
			s.queries = append(s.queries, r.URL.RawQuery)
			status := s.writeStatus
			s.mu.Unlock()
			if status != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"code":"internal error","message":"disk full"}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled: true,
		URL:     s.URL,
		Token:   "test-token",
		Org:     "home",
		Bucket:  "energy",
		Timeout: 2,
	}
}

func newClient(t *testing.T, cfg config.InfluxDBConfig) *influxdb.Client {
	t.Helper()
	client, err := influxdb.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNew_Disabled(t *testing.T) {
	_, err := influxdb.New(config.InfluxDBConfig{})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("New() error = %v, want ErrDisabled", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	srv := newFakeServer(t)
	client := newClient(t, srv.config())

	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClient_HealthCheckUnreachable(t *testing.T) {
	srv := newFakeServer(t)
	cfg := srv.config()
	srv.Close()

	client := newClient(t, cfg)
	if err := client.HealthCheck(t.Context()); err == nil {
		t.Error("HealthCheck() expected error for stopped server")
	}
}

func TestClient_Flush(t *testing.T) {
	srv := newFakeServer(t)
	client := newClient(t, srv.config())

	lines := []telemetry.MetricLine{
		{Prefix: "tasmota", Device: "pompa", Name: "Power", Value: "12.5", Timestamp: 1700000000},
		{Prefix: "tasmota", Device: "pompa", Name: "Voltage", Value: "230.5", Timestamp: 1700000000},
		{Prefix: "tasmota", Device: "boiler", Name: "on", Value: "1", Timestamp: 1700000001},
	}
	if err := client.Flush(t.Context(), lines); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if len(srv.writes) != 1 {
		t.Fatalf("write requests = %d, want 1", len(srv.writes))
	}
	for _, want := range []string{"org=home", "bucket=energy", "precision=s"} {
		if !strings.Contains(srv.queries[0], want) {
			t.Errorf("query %q missing %q", srv.queries[0], want)
		}
	}

	points := strings.Split(strings.TrimSpace(srv.writes[0]), "\n")
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2: %q", len(points), srv.writes[0])
	}
	if !strings.HasPrefix(points[0], "tasmota,device=pompa ") ||
		!strings.Contains(points[0], "Power=12.5") ||
		!strings.Contains(points[0], "Voltage=230.5") ||
		!strings.HasSuffix(points[0], " 1700000000") {
		t.Errorf("first point = %q", points[0])
	}
	if !strings.HasPrefix(points[1], "tasmota,device=boiler ") ||
		!strings.Contains(points[1], " on=1 ") ||
		!strings.HasSuffix(points[1], " 1700000001") {
		t.Errorf("second point = %q", points[1])
	}
}

func TestClient_FlushEmpty(t *testing.T) {
	srv := newFakeServer(t)
	client := newClient(t, srv.config())

	if err := client.Flush(t.Context(), nil); err != nil {
		t.Fatalf("Flush(nil) error = %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.writes) != 0 {
		t.Errorf("write requests = %d, want 0", len(srv.writes))
	}
}

func TestClient_FlushServerError(t *testing.T) {
	srv := newFakeServer(t)
	srv.writeStatus = http.StatusInternalServerError
	client := newClient(t, srv.config())

	err := client.Flush(t.Context(), []telemetry.MetricLine{
		{Prefix: "tasmota", Device: "pompa", Name: "Power", Value: "12", Timestamp: 1},
	})
	if !errors.Is(err, influxdb.ErrWriteFailed) {
		t.Errorf("Flush() error = %v, want ErrWriteFailed", err)
	}
}

func TestClient_Closed(t *testing.T) {
	srv := newFakeServer(t)
	client, err := influxdb.New(srv.config())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	err = client.Flush(t.Context(), []telemetry.MetricLine{{Prefix: "p", Device: "d", Name: "n", Value: "1"}})
	if !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("Flush() after Close error = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}
