// Package influxdb mirrors decoded metric lines into an InfluxDB v2 bucket.
//
// The mirror is optional and disabled by default. It receives the same
// batches as the carbon writer and has the same delivery guarantee: one
// blocking write per batch, no buffering, no retry.
//
// # Data Model
//
// Lines sharing a device and timestamp become one point:
//
//	measurement: the metric prefix (e.g. "tasmota")
//	tag device:  the device name
//	fields:      one float field per ENERGY key
//	time:        the batch timestamp, second precision
//
// # Usage
//
//	mirror, err := influxdb.New(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // not configured
//	}
//	defer mirror.Close()
//	err = mirror.Flush(ctx, lines)
package influxdb
