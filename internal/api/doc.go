// Package api provides the optional HTTP status server for mqtt2graphite.
//
// It exposes read-only views of the running bridge for monitoring:
//
//	GET /healthz          200 while the broker session is Connected, 503 otherwise
//	GET /api/v1/stats     session state and message counters
//	GET /api/v1/events    recent session journal events (?limit=N, default 50)
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
