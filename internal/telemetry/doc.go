// Package telemetry turns Tasmota broker messages into carbon metric lines.
//
// A Tasmota device publishes two kinds of messages that the bridge cares about:
//
//	tele/{device}/SENSOR   JSON telemetry with an ENERGY object
//	stat/{device}/POWER    raw "ON" / "OFF" relay state
//
// Decode maps one (topic, payload, timestamp) triple onto zero or more
// MetricLine values. It performs no I/O and keeps no state, so it can be
// called from the session loop without coordination.
//
// # Output format
//
// Each MetricLine serialises to the carbon plaintext protocol:
//
//	tasmota.pompa.Power 12.5 1700000000\n
//
// Values are carried through as the literal token found in the payload.
// Nothing is re-rendered through float64, so the collector sees exactly the
// precision the device reported.
//
// # Usage
//
//	dec := telemetry.NewDecoder("tasmota")
//	lines, err := dec.Decode(topic, payload, time.Now().Unix())
//	if err != nil {
//	    logger.Warn("dropping message", "topic", topic, "error", err)
//	    return
//	}
//	_, _ = conn.Write(telemetry.Encode(lines))
package telemetry
