package bridge

import (
	"context"

	"github.com/nerrad567/mqtt2graphite/internal/journal"
	"github.com/nerrad567/mqtt2graphite/internal/telemetry"
)

// MessageHandler receives one broker message. It is an alias so transport
// packages can declare the same signature without importing bridge.
type MessageHandler = func(topic string, payload []byte) error

// Transport is the broker client the Controller drives.
//
// Connect starts a session and returns once the broker accepted or refused
// it. The on-connect callback fires after every successful connect; the
// on-disconnect callback fires only when an established session drops
// without Disconnect having been called. Disconnect must be safe to call
// in any state.
type Transport interface {
	Connect() error
	Disconnect()
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// Sink accepts decoded metric lines. An error means the whole batch was
// dropped.
type Sink interface {
	Flush(ctx context.Context, lines []telemetry.MetricLine) error
}

// Journal records session lifecycle events.
type Journal interface {
	Record(ctx context.Context, kind journal.Kind, detail string) error
}

// Logger is the subset of slog.Logger the Controller uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
