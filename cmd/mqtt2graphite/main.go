// mqtt2graphite forwards Tasmota energy telemetry from an MQTT broker to a
// Graphite carbon collector.
//
// It subscribes to the SENSOR and POWER topics of a fixed list of devices,
// turns every ENERGY reading and relay state into a plaintext metric line,
// and writes each batch over a fresh TCP connection. The broker session is
// announced on a presence topic and guarded by a last will.
//
// Configuration comes from an optional YAML file, a .env file and the
// environment (MQTT_HOST, CARBON_SERVER, DEBUG, ...). See
// internal/infrastructure/config for the full list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/mqtt2graphite/migrations"

	"github.com/nerrad567/mqtt2graphite/internal/api"
	"github.com/nerrad567/mqtt2graphite/internal/bridge"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/carbon"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/database"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2graphite/internal/journal"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configEnvVar names the variable holding the default config file path.
const configEnvVar = "MQTT2GRAPHITE_CONFIG"

// healthCheckTimeout bounds the startup probes.
const healthCheckTimeout = 5 * time.Second

func main() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	code, err := run(context.Background(), os.Args[1:], signals, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// options holds the parsed command line.
type options struct {
	configPath string
	debug      bool
	version    bool
	help       bool
}

// parseFlags parses args. A nil error with help or version set means the
// caller should print and exit.
func parseFlags(args []string, stdout io.Writer) (*options, error) {
	opts := &options{}

	flagSet := pflag.NewFlagSet("mqtt2graphite", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&opts.configPath, "config", os.Getenv(configEnvVar), "path to YAML config file (env "+configEnvVar+")")
	flagSet.BoolVar(&opts.debug, "debug", false, "enable debug logging (same as DEBUG=1)")
	flagSet.BoolVar(&opts.version, "version", false, "print version and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.help = true
			return opts, nil
		}
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if opts.help {
		fmt.Fprintf(stdout, "Usage: mqtt2graphite [flags]\n\nForward Tasmota energy telemetry from MQTT to Graphite.\n\nFlags:\n")
		flagSet.PrintDefaults()
	}
	return opts, nil
}

// run wires the bridge and blocks until ctx is cancelled or a signal
// arrives on signals.
//
// Returns:
//   - int: process exit status; the signal number when stopped by a signal
//   - error: startup failure
func run(ctx context.Context, args []string, signals <-chan os.Signal, stdout io.Writer) (int, error) {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		return 0, err
	}
	if opts.help {
		return 0, nil
	}
	if opts.version {
		fmt.Fprintf(stdout, "mqtt2graphite %s (commit %s, built %s)\n", version, commit, date)
		return 0, nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return 0, fmt.Errorf("loading config: %w", err)
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}

	log := logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("starting mqtt2graphite",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	clientID := bridge.NewClientID()

	// Sinks
	writer := carbon.NewWriter(cfg.Carbon)
	sinks := bridge.MultiSink{writer}
	log.Info("carbon collector configured", "address", writer.Addr())

	mirror, err := influxdb.New(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Debug("InfluxDB mirror disabled")
	case err != nil:
		return 0, fmt.Errorf("creating InfluxDB mirror: %w", err)
	default:
		defer func() {
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sinks = append(sinks, mirror)
		log.Info("InfluxDB mirror enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Session journal
	var store *journal.Store
	var db *database.DB
	if cfg.Journal.Enabled {
		db, store, err = openJournal(ctx, cfg, clientID, log)
		if err != nil {
			return 0, err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()
	}

	// Broker
	client := mqtt.NewClient(cfg.MQTT, mqtt.Identity{
		ClientID:    clientID,
		WillTopic:   bridge.PresenceTopic(cfg.MQTT.Presence.WillTopic, clientID),
		WillPayload: cfg.MQTT.Presence.WillPayload,
	})
	client.SetLogger(log.With("component", "mqtt"))

	controller := bridge.New(bridge.Config{
		ClientID:       client.ClientID(),
		PresenceTopic:  bridge.PresenceTopic(cfg.MQTT.Presence.Topic, clientID),
		Devices:        cfg.Bridge.Devices,
		Prefix:         cfg.Bridge.Prefix,
		ReconnectDelay: cfg.GetReconnectDelay(),
	}, client, sinks)
	controller.SetLogger(log.With("component", "bridge"))
	if store != nil {
		controller.SetJournal(store)
	}

	if cfg.Status.Enabled {
		server, err := startStatusServer(ctx, cfg, log, controller, client, store)
		if err != nil {
			return 0, err
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	}

	healthCheck(ctx, log, writer, mirror, db)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	caught := make(chan os.Signal, 1)
	go func() {
		select {
		case sig := <-signals:
			caught <- sig
			cancel()
		case <-runCtx.Done():
		}
	}()

	log.Info("bridge starting",
		"client_id", clientID,
		"broker", cfg.MQTT.Broker.Address(),
		"devices", cfg.Bridge.Devices,
	)
	if err := controller.Run(runCtx); err != nil {
		return 0, fmt.Errorf("running bridge: %w", err)
	}

	stats := controller.Stats()
	log.Info("mqtt2graphite stopped",
		"messages", stats.Messages,
		"lines_written", stats.LinesWritten,
		"decode_failures", stats.DecodeFailures,
		"flush_failures", stats.FlushFailures,
		"reconnects", stats.Reconnects,
	)

	select {
	case sig := <-caught:
		log.Info("exiting on signal", "signal", sig.String())
		return signalExitCode(sig), nil
	default:
		return 0, nil
	}
}

// openJournal opens the journal database, applies migrations and prunes
// events older than the retention period.
func openJournal(ctx context.Context, cfg *config.Config, clientID string, log *logging.Logger) (*database.DB, *journal.Store, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Journal.Path,
		WALMode:     true,
		BusyTimeout: cfg.Journal.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running journal migrations: %w", err)
	}

	store := journal.NewStore(db.DB, clientID)
	if retention := cfg.GetJournalRetention(); retention > 0 {
		pruned, err := store.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn("journal prune failed", "error", err)
		} else if pruned > 0 {
			log.Info("journal pruned", "events", pruned)
		}
	}

	log.Info("session journal enabled", "path", db.Path())
	return db, store, nil
}

// startStatusServer starts the HTTP status server. The events endpoint is
// served only when the journal is enabled.
func startStatusServer(ctx context.Context, cfg *config.Config, log *logging.Logger, controller *bridge.Controller, client *mqtt.Client, store *journal.Store) (*api.Server, error) {
	deps := api.Deps{
		Config:   cfg.Status,
		Logger:   log.With("component", "api"),
		Status:   controller,
		Broker:   client,
		ClientID: client.ClientID(),
		Version:  version,
	}
	if store != nil {
		deps.Events = store
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating status server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting status server: %w", err)
	}
	return server, nil
}

// healthChecker is implemented by every probe-able dependency.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck probes the configured dependencies once. Failures are only
// logged since the collector or broker may come up later.
func healthCheck(ctx context.Context, log *logging.Logger, writer *carbon.Writer, mirror *influxdb.Client, db *database.DB) {
	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	checks := map[string]healthChecker{"carbon": writer}
	if mirror != nil {
		checks["influxdb"] = mirror
	}
	if db != nil {
		checks["journal"] = db
	}

	healthy := true
	for name, check := range checks {
		if err := check.HealthCheck(checkCtx); err != nil {
			healthy = false
			log.Warn("startup health check failed", "dependency", name, "error", err)
		}
	}
	if healthy {
		log.Info("all health checks passed")
	}
}

// signalExitCode returns the signal number, or 1 for signals without one.
func signalExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 1
}
