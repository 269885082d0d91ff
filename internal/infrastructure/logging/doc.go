// Package logging provides structured logging for mqtt2graphite.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bridge.
//
// # Features
//
//   - Text output by default, JSON when configured
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional copy of every entry to a remote syslog collector over UDP
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  syslog:
//	    host: ""         # empty disables remote logging
//	    port: 1514
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("connected to broker", "client_id", id)
//
// Never log broker passwords or InfluxDB tokens.
package logging
