package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2graphite/internal/telemetry"
)

// Default timeouts for InfluxDB operations.
const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingTimeout  = 5 * time.Second
)

// Client writes metric batches to InfluxDB.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	cfg      config.InfluxDBConfig
	timeout  time.Duration

	// closed is set once Close has run.
	closed bool
	mu     sync.RWMutex
}

// New creates the mirror client. It does not contact the server; use
// HealthCheck for that.
//
// Returns:
//   - *Client: Client ready for Flush
//   - error: ErrDisabled if the mirror is not enabled
func New(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	timeout := cfg.GetTimeout()
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetPrecision(time.Second).
			SetHTTPRequestTimeout(uint(timeout/time.Second)), // #nosec G115 -- positive by construction
	)

	return &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		cfg:      cfg,
		timeout:  timeout,
	}, nil
}

// Flush writes lines as points and waits for the server to accept them.
//
// Returns:
//   - error: ErrNotConnected after Close, ErrWriteFailed wrapping the cause
func (c *Client) Flush(ctx context.Context, lines []telemetry.MetricLine) error {
	if len(lines) == 0 {
		return nil
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	points := toPoints(lines)
	if len(points) == 0 {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.writeAPI.WritePoint(writeCtx, points...); err != nil {
		return fmt.Errorf("%w: %d points to %s: %w", ErrWriteFailed, len(points), c.cfg.Bucket, err)
	}
	return nil
}

// toPoints groups lines by prefix, device and timestamp, keeping the order
// in which each group first appears.
func toPoints(lines []telemetry.MetricLine) []*write.Point {
	type key struct {
		prefix, device string
		ts             int64
	}

	index := make(map[key]*write.Point)
	var points []*write.Point

	for _, l := range lines {
		v, err := strconv.ParseFloat(l.Value, 64)
		if err != nil {
			continue
		}

		k := key{l.Prefix, l.Device, l.Timestamp}
		p, ok := index[k]
		if !ok {
			p = write.NewPointWithMeasurement(l.Prefix).
				AddTag("device", l.Device).
				SetTime(time.Unix(l.Timestamp, 0))
			index[k] = p
			points = append(points, p)
		}
		p.AddField(l.Name, v)
	}

	return points
}

// HealthCheck pings the server.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return ErrUnhealthy
	}

	return nil
}

// IsConnected reports whether the client is still open.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close releases the underlying HTTP client. Safe to call more than once.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.client.Close()

	return nil
}
