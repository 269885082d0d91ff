package carbon

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2graphite/internal/telemetry"
)

// defaultTimeout bounds both the dial and the write of one flush.
const defaultTimeout = 5 * time.Second

// Writer delivers metric batches to a carbon plaintext listener.
//
// Thread Safety: Writer holds no connection state; Flush may be called
// concurrently.
type Writer struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewWriter creates a Writer for the configured collector. No connection
// is made until the first Flush.
func NewWriter(cfg config.CarbonConfig) *Writer {
	timeout := cfg.GetTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Writer{
		addr:    cfg.Address(),
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

// Addr returns the collector host:port.
func (w *Writer) Addr() string {
	return w.addr
}

// Flush writes lines over a new connection and closes it.
//
// An empty batch does nothing. The write is bounded by the writer's timeout
// and by ctx, whichever ends first.
//
// Returns:
//   - error: ErrConnectionFailed or ErrWriteFailed wrapping the cause
func (w *Writer) Flush(ctx context.Context, lines []telemetry.MetricLine) error {
	payload := telemetry.Encode(lines)
	if len(payload) == 0 {
		return nil
	}

	conn, err := w.dialer.DialContext(ctx, "tcp", w.addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, w.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(w.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: %d lines to %s: %w", ErrWriteFailed, len(lines), w.addr, err)
	}

	return nil
}

// HealthCheck verifies the collector accepts TCP connections.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if reachable, ErrConnectionFailed otherwise
func (w *Writer) HealthCheck(ctx context.Context) error {
	conn, err := w.dialer.DialContext(ctx, "tcp", w.addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, w.addr, err)
	}
	return conn.Close()
}
