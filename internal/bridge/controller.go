package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt2graphite/internal/journal"
	"github.com/nerrad567/mqtt2graphite/internal/telemetry"
)

// Session defaults.
const (
	// DefaultReconnectDelay is the fixed wait between an unexpected drop and
	// the next connect attempt.
	DefaultReconnectDelay = 5 * time.Second

	// subscribeQoS is the lowest tier; telemetry is periodic and lossy by nature.
	subscribeQoS = 0

	// presenceQoS matches a plain fire-and-forget publish.
	presenceQoS = 0

	// eventBuffer bounds how many transport events may queue ahead of the loop.
	eventBuffer = 256

	// journalTimeout bounds a journal write so it cannot stall the loop.
	journalTimeout = 2 * time.Second
)

// Presence payloads.
const (
	PresenceOnline  = "Online"
	PresenceOffline = "Offline"
)

// Config holds the session parameters the Controller needs.
type Config struct {
	// ClientID is the broker client identifier, also used for presence.
	ClientID string

	// PresenceTopic receives "Online" on connect and "Offline" on shutdown.
	PresenceTopic string

	// Devices is the allow-list of Tasmota device topics.
	Devices []string

	// Prefix is the first segment of every metric path.
	Prefix string

	// ReconnectDelay is the fixed wait before reconnecting after a drop.
	// Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration
}

// Stats is a snapshot of the Controller's counters.
type Stats struct {
	Messages       uint64
	LinesWritten   uint64
	DecodeFailures uint64
	FlushFailures  uint64
	Reconnects     uint64
}

type eventKind int

const (
	eventConnected eventKind = iota
	eventConnectionLost
	eventMessage
	eventReconnect
)

type event struct {
	kind     eventKind
	err      error
	topic    string
	payload  []byte
	received time.Time
}

// Controller maintains the broker session and routes telemetry to a Sink.
//
// Thread Safety:
//   - Run must be called once; all session state is owned by its goroutine.
//   - State, Stats and Shutdown are safe to call from any goroutine.
type Controller struct {
	cfg       Config
	transport Transport
	sink      Sink
	decoder   *telemetry.Decoder
	logger    Logger
	journal   Journal

	now func() time.Time

	events chan event
	state  atomic.Int32

	// reconnectTimer is only touched from the loop goroutine.
	reconnectTimer *time.Timer
	stopping       atomic.Bool
	shutdownOnce   sync.Once

	messages       atomic.Uint64
	linesWritten   atomic.Uint64
	decodeFailures atomic.Uint64
	flushFailures  atomic.Uint64
	reconnects     atomic.Uint64
}

// New creates a Controller for the given transport and sink.
func New(cfg Config, transport Transport, sink Sink) *Controller {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	return &Controller{
		cfg:       cfg,
		transport: transport,
		sink:      sink,
		decoder:   telemetry.NewDecoder(cfg.Prefix),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		events:    make(chan event, eventBuffer),
	}
}

// SetLogger sets the logger used for session and message diagnostics.
func (c *Controller) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetJournal enables recording of session lifecycle events.
func (c *Controller) SetJournal(j Journal) {
	c.journal = j
}

// State returns the current session state.
func (c *Controller) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Stats returns a snapshot of the message counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Messages:       c.messages.Load(),
		LinesWritten:   c.linesWritten.Load(),
		DecodeFailures: c.decodeFailures.Load(),
		FlushFailures:  c.flushFailures.Load(),
		Reconnects:     c.reconnects.Load(),
	}
}

// Run connects to the broker and processes session events until ctx is
// cancelled, then performs the shutdown sequence and returns.
//
// Connection failures never end Run; they schedule a reconnect.
func (c *Controller) Run(ctx context.Context) error {
	c.transport.SetOnConnect(func() {
		c.post(ctx, event{kind: eventConnected})
	})
	c.transport.SetOnDisconnect(func(err error) {
		c.post(ctx, event{kind: eventConnectionLost, err: err})
	})

	c.connect(ctx)

	for {
		select {
		case <-ctx.Done():
			if c.reconnectTimer != nil {
				c.reconnectTimer.Stop()
			}
			c.Shutdown()
			return nil
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// Shutdown withdraws presence and disconnects from the broker.
//
// Only the first call has any effect. Run calls it when its context is
// cancelled; calling it directly is safe while a callback is in progress.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.stopping.Store(true)

		if err := c.transport.Publish(c.cfg.PresenceTopic, []byte(PresenceOffline), presenceQoS, false); err != nil {
			c.logger.Debug("presence withdrawal not published", "topic", c.cfg.PresenceTopic, "error", err)
		}
		c.transport.Disconnect()
		c.setState(StateDisconnected)

		c.record(context.Background(), journal.KindShutdown, "")
		c.logger.Info("clean disconnection", "client_id", c.cfg.ClientID)
	})
}

// post queues an event for the loop. It gives up once ctx is done so that
// transport goroutines never block on a loop that has exited.
func (c *Controller) post(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	if c.stopping.Load() {
		return
	}
	switch ev.kind {
	case eventConnected:
		c.onConnected(ctx)
	case eventConnectionLost:
		c.onConnectionLost(ctx, ev.err)
	case eventMessage:
		c.onMessage(ctx, ev)
	case eventReconnect:
		c.onReconnect(ctx)
	}
}

// connect moves to Connecting and starts a session attempt. A refused or
// timed-out attempt is treated like an unexpected drop.
func (c *Controller) connect(ctx context.Context) {
	c.setState(StateConnecting)
	c.logger.Info("connecting to broker", "client_id", c.cfg.ClientID)

	if err := c.transport.Connect(); err != nil {
		c.setState(StateDisconnected)
		c.logger.Warn("broker connect failed", "error", err, "retry_in", c.cfg.ReconnectDelay)
		c.scheduleReconnect(ctx)
	}
}

// onConnected completes the pending attempt. Connect and connection-lost
// callbacks arrive on separate goroutines, so a connect event may be queued
// behind the drop of the same session; such a stale event is ignored and the
// scheduled reconnect stays in charge.
func (c *Controller) onConnected(ctx context.Context) {
	if c.State() != StateConnecting || c.reconnectTimer != nil {
		c.logger.Debug("ignoring stale connect event", "state", c.State().String())
		return
	}
	c.setState(StateConnected)
	c.logger.Info("connected to broker", "client_id", c.cfg.ClientID)
	c.record(ctx, journal.KindConnected, "")

	if err := c.transport.Publish(c.cfg.PresenceTopic, []byte(PresenceOnline), presenceQoS, false); err != nil {
		c.logger.Warn("presence announcement failed", "topic", c.cfg.PresenceTopic, "error", err)
	}

	for _, topic := range telemetry.DeviceTopics(c.cfg.Devices) {
		c.logger.Debug("subscribing", "topic", topic)
		if err := c.transport.Subscribe(topic, subscribeQoS, c.enqueueMessage(ctx)); err != nil {
			c.logger.Warn("subscribe failed", "topic", topic, "error", err)
		}
	}
}

func (c *Controller) onConnectionLost(ctx context.Context, err error) {
	c.setState(StateDisconnected)

	if err == nil {
		c.logger.Info("clean disconnection", "client_id", c.cfg.ClientID)
		c.record(ctx, journal.KindDisconnected, "clean")
		return
	}

	c.logger.Warn("unexpected disconnect, reconnecting", "error", err, "retry_in", c.cfg.ReconnectDelay)
	c.record(ctx, journal.KindDisconnected, err.Error())
	c.scheduleReconnect(ctx)
}

func (c *Controller) onReconnect(ctx context.Context) {
	c.reconnectTimer = nil
	if c.State() != StateDisconnected {
		return
	}
	c.reconnects.Add(1)
	c.connect(ctx)
}

func (c *Controller) scheduleReconnect(ctx context.Context) {
	if c.reconnectTimer != nil {
		return
	}
	c.record(ctx, journal.KindReconnectScheduled, c.cfg.ReconnectDelay.String())
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.post(ctx, event{kind: eventReconnect})
	})
}

// enqueueMessage returns the subscription handler. It runs on a transport
// goroutine and only hands the message to the loop.
func (c *Controller) enqueueMessage(ctx context.Context) MessageHandler {
	return func(topic string, payload []byte) error {
		c.post(ctx, event{
			kind:     eventMessage,
			topic:    topic,
			payload:  payload,
			received: c.now(),
		})
		return nil
	}
}

func (c *Controller) onMessage(ctx context.Context, ev event) {
	if c.State() != StateConnected {
		c.logger.Debug("dropping message received while not connected", "topic", ev.topic)
		return
	}
	c.messages.Add(1)
	c.logger.Debug("message received", "topic", ev.topic, "payload", string(ev.payload))

	lines, err := c.decoder.Decode(ev.topic, ev.payload, ev.received.Unix())
	if err != nil {
		c.decodeFailures.Add(1)
		c.logger.Warn("message decode failed", "topic", ev.topic, "error", err)
		return
	}
	if len(lines) == 0 {
		return
	}
	c.logger.Debug("forwarding metrics", "topic", ev.topic, "lines", string(telemetry.Encode(lines)))

	// In-flight flushes are not cancelled by shutdown.
	if err := c.sink.Flush(context.WithoutCancel(ctx), lines); err != nil {
		c.flushFailures.Add(1)
		c.logger.Warn("metric flush failed, batch dropped", "topic", ev.topic, "lines", len(lines), "error", err)
		c.record(ctx, journal.KindFlushFailed, fmt.Sprintf("%s: %v", ev.topic, err))
		return
	}
	c.linesWritten.Add(uint64(len(lines)))
}

func (c *Controller) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

func (c *Controller) record(ctx context.Context, kind journal.Kind, detail string) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := c.journal.Record(ctx, kind, detail); err != nil {
		c.logger.Warn("journal write failed", "kind", kind, "error", err)
	}
}
