// Package bridge owns the broker session that feeds the carbon collector.
//
// The Controller keeps one MQTT session alive for the lifetime of the
// process. It announces itself on a presence topic, subscribes to the
// SENSOR and POWER topics of every configured device, decodes each inbound
// message with the telemetry package and hands the resulting lines to a Sink.
//
// # Event loop
//
// Transport callbacks (connected, connection lost, message) never touch
// controller state directly. They post events onto a channel that Run drains
// one at a time, so all state transitions happen on a single goroutine:
//
//	Disconnected --Run--> Connecting --connected--> Connected
//	     ^                    |                        |
//	     |              connect failed           connection lost
//	     |                    v                        v
//	     +-------------- reconnect timer <------- Disconnected
//
// Reconnects use a fixed delay rather than exponential backoff. The delay is
// a timer that posts an event back into the loop, so the loop never sleeps.
//
// Cancelling the context passed to Run performs the shutdown sequence on the
// loop goroutine: publish "Offline" on the presence topic, disconnect once,
// return.
//
// # Failure policy
//
// Nothing a single message does can stop the loop. Decode failures are logged
// and produce no lines. Sink failures are logged and the batch is dropped:
// delivery to the collector is at most once.
package bridge
