package logging

import (
	"context"
	"errors"
	"io"
	"log/syslog"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/config"
)

// serviceName is attached to every entry and used as the syslog tag.
const serviceName = "mqtt2graphite"

// Logger wraps slog.Logger with the bridge's default fields.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (text or JSON)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Remote syslog fan-out when cfg.Syslog.Host is set
//
// A syslog target that cannot be resolved is reported on the local
// output and otherwise ignored.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}
	handler := newHandler(output, cfg.Format, opts)

	var closer io.Closer
	var syslogErr error
	if cfg.Syslog.Host != "" {
		w, err := syslog.Dial("udp", cfg.Syslog.Address(), syslog.LOG_INFO|syslog.LOG_DAEMON, serviceName)
		if err != nil {
			syslogErr = err
		} else {
			closer = w
			handler = &teeHandler{handlers: []slog.Handler{
				handler,
				newSyslogHandler(w, opts),
			}}
		}
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	l := &Logger{
		Logger: slog.New(handler),
		closer: closer,
	}
	if syslogErr != nil {
		l.Warn("remote syslog disabled", "address", cfg.Syslog.Address(), "error", syslogErr)
	}
	return l
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt")
//	mqttLogger.Info("connected") // Includes component=mqtt
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Close releases the syslog connection, if any. Loggers derived with With
// share it and must not be used after the root logger is closed.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default creates a default logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}, "dev")
}

// teeHandler sends every record to all of its handlers.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: handlers}
}

// priorityWriter is the subset of *syslog.Writer used to send one message
// at a given severity.
type priorityWriter interface {
	Debug(m string) error
	Info(m string) error
	Warning(m string) error
	Err(m string) error
}

// syslogOutput formats through a text handler and forwards each record at
// the syslog severity matching its level. Handlers derived with WithAttrs
// or WithGroup share it.
type syslogOutput struct {
	mu    sync.Mutex
	w     priorityWriter
	level slog.Level
}

// Write is called by the text handler exactly once per record, while the
// owning syslogHandler holds mu.
func (o *syslogOutput) Write(p []byte) (int, error) {
	msg := strings.TrimSuffix(string(p), "\n")
	var err error
	switch {
	case o.level >= slog.LevelError:
		err = o.w.Err(msg)
	case o.level >= slog.LevelWarn:
		err = o.w.Warning(msg)
	case o.level >= slog.LevelInfo:
		err = o.w.Info(msg)
	default:
		err = o.w.Debug(msg)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

type syslogHandler struct {
	out   *syslogOutput
	inner slog.Handler
}

func newSyslogHandler(w priorityWriter, opts *slog.HandlerOptions) *syslogHandler {
	out := &syslogOutput{w: w}
	return &syslogHandler{out: out, inner: slog.NewTextHandler(out, opts)}
}

func (h *syslogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *syslogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	h.out.level = r.Level
	return h.inner.Handle(ctx, r)
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &syslogHandler{out: h.out, inner: h.inner.WithAttrs(attrs)}
}

func (h *syslogHandler) WithGroup(name string) slog.Handler {
	return &syslogHandler{out: h.out, inner: h.inner.WithGroup(name)}
}
