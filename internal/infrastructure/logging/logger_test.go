package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	tests := []config.LoggingConfig{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
		{},
	}
	for _, cfg := range tests {
		logger := New(cfg, "1.0.0")
		if logger == nil {
			t.Fatalf("New(%+v) returned nil", cfg)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	logger := Default()
	child := logger.With("component", "mqtt")

	if child == nil {
		t.Fatal("expected non-nil child logger")
	}
	if child == logger {
		t.Error("expected child logger to be different from parent")
	}
	if err := child.Close(); err != nil {
		t.Errorf("child Close() error = %v", err)
	}
}

func TestLogger_CloseNil(t *testing.T) {
	var l *Logger
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nil logger = %v", err)
	}
}

func TestTeeHandler(t *testing.T) {
	var info, warn bytes.Buffer
	tee := &teeHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(tee.WithAttrs([]slog.Attr{slog.String("service", serviceName)}))

	logger.Info("flushed", "lines", 3)
	logger.Warn("flush failed")

	if n := strings.Count(info.String(), "\n"); n != 2 {
		t.Errorf("info handler got %d entries, want 2", n)
	}
	if n := strings.Count(warn.String(), "\n"); n != 1 {
		t.Errorf("warn handler got %d entries, want 1", n)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.SplitN(info.String(), "\n", 2)[0]), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["service"] != serviceName || entry["msg"] != "flushed" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_SyslogFanOut(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)

	logger := New(config.LoggingConfig{
		Level:  "info",
		Output: "stderr",
		Syslog: config.SyslogConfig{Host: "127.0.0.1", Port: addr.Port},
	}, "test")
	defer logger.Close()

	logger.Warn("unexpected disconnect, reconnecting", "retry_in", "5s")

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	buf := make([]byte, 2048)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("no syslog datagram received: %v", err)
	}

	got := string(buf[:n])
	// daemon facility (3<<3) with warning severity (4)
	for _, want := range []string{"<28>", serviceName, "unexpected disconnect", "retry_in=5s"} {
		if !strings.Contains(got, want) {
			t.Errorf("datagram %q missing %q", got, want)
		}
	}
}

type severityCall struct {
	severity string
	msg      string
}

// recordingWriter captures which severity method each message was sent with.
type recordingWriter struct {
	calls []severityCall
}

func (w *recordingWriter) record(severity, m string) error {
	w.calls = append(w.calls, severityCall{severity: severity, msg: m})
	return nil
}

func (w *recordingWriter) Debug(m string) error   { return w.record("debug", m) }
func (w *recordingWriter) Info(m string) error    { return w.record("info", m) }
func (w *recordingWriter) Warning(m string) error { return w.record("warning", m) }
func (w *recordingWriter) Err(m string) error     { return w.record("err", m) }

func TestSyslogHandler_Severity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "debug"},
		{slog.LevelInfo, "info"},
		{slog.LevelWarn, "warning"},
		{slog.LevelError, "err"},
		{slog.LevelError + 4, "err"},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			w := &recordingWriter{}
			logger := slog.New(newSyslogHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
			logger.Log(t.Context(), tt.level, "flush failed", "lines", 3)

			if len(w.calls) != 1 {
				t.Fatalf("calls = %d, want 1", len(w.calls))
			}
			got := w.calls[0]
			if got.severity != tt.want {
				t.Errorf("severity = %q, want %q", got.severity, tt.want)
			}
			if strings.HasSuffix(got.msg, "\n") || !strings.Contains(got.msg, "lines=3") {
				t.Errorf("msg = %q", got.msg)
			}
		})
	}
}

func TestSyslogHandler_DerivedHandlersShareOutput(t *testing.T) {
	w := &recordingWriter{}
	logger := slog.New(newSyslogHandler(w, nil)).With("component", "bridge").WithGroup("session")
	logger.Warn("reconnect scheduled", "delay", "5s")

	if len(w.calls) != 1 || w.calls[0].severity != "warning" {
		t.Fatalf("calls = %+v, want one warning", w.calls)
	}
	for _, want := range []string{"component=bridge", "session.delay=5s"} {
		if !strings.Contains(w.calls[0].msg, want) {
			t.Errorf("msg %q missing %q", w.calls[0].msg, want)
		}
	}
}

func TestTeeHandler_JoinsErrors(t *testing.T) {
	tee := &teeHandler{handlers: []slog.Handler{failingHandler{}, failingHandler{}}}
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0)
	if err := tee.Handle(t.Context(), r); err == nil || !errors.Is(err, errWriteFailed) {
		t.Errorf("Handle() error = %v, want errWriteFailed", err)
	}
}

var errWriteFailed = errors.New("write failed")

type failingHandler struct{}

func (failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (failingHandler) Handle(context.Context, slog.Record) error { return errWriteFailed }
func (f failingHandler) WithAttrs([]slog.Attr) slog.Handler      { return f }
func (f failingHandler) WithGroup(string) slog.Handler           { return f }
