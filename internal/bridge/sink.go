package bridge

import (
	"context"
	"errors"

	"github.com/nerrad567/mqtt2graphite/internal/telemetry"
)

// MultiSink flushes every batch to each of its sinks in order.
//
// A failing sink does not stop the others; the returned error joins every
// failure.
type MultiSink []Sink

// Flush implements Sink.
func (m MultiSink) Flush(ctx context.Context, lines []telemetry.MetricLine) error {
	var errs []error
	for _, s := range m {
		if err := s.Flush(ctx, lines); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
