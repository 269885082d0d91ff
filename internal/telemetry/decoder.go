package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

// DefaultPrefix is the first segment of every metric path.
const DefaultPrefix = "tasmota"

// energyField is the SENSOR object carrying the readings we forward.
const energyField = "ENERGY"

// powerOn is the only POWER payload that maps to 1.
const powerOn = "ON"

// powerMetric is the metric name emitted for POWER messages.
const powerMetric = "on"

// jsonAPI is shared by all decoders; iterators are pooled by the config.
var jsonAPI = jsoniter.ConfigFastest

// Decoder maps broker messages to metric lines under a fixed prefix.
//
// The zero value is not useful; create one with NewDecoder.
type Decoder struct {
	prefix string
}

// NewDecoder returns a Decoder emitting paths under prefix.
// An empty prefix falls back to DefaultPrefix.
func NewDecoder(prefix string) *Decoder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Decoder{prefix: prefix}
}

// Prefix returns the metric path prefix.
func (d *Decoder) Prefix() string {
	return d.prefix
}

// Decode converts one broker message into metric lines stamped with now.
//
// POWER topics always yield exactly one line. SENSOR topics yield one line per
// numeric ENERGY entry, in payload order. Topics of any other kind yield no
// lines and no error.
//
// On error the returned slice is always nil.
func (d *Decoder) Decode(topic string, payload []byte, now int64) ([]MetricLine, error) {
	parsed, err := ParseTopic(topic)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(topic, "/"+string(KindPower)):
		return []MetricLine{d.powerLine(parsed.Device, payload, now)}, nil
	case strings.HasSuffix(topic, "/"+string(KindSensor)):
		return d.sensorLines(parsed.Device, payload, now)
	default:
		return nil, nil
	}
}

func (d *Decoder) powerLine(device string, payload []byte, now int64) MetricLine {
	value := "0"
	if string(payload) == powerOn {
		value = "1"
	}
	return MetricLine{
		Prefix:    d.prefix,
		Device:    device,
		Name:      powerMetric,
		Value:     value,
		Timestamp: now,
	}
}

func (d *Decoder) sensorLines(device string, payload []byte, now int64) ([]MetricLine, error) {
	readings, err := parseEnergy(payload)
	if err != nil {
		return nil, err
	}

	lines := make([]MetricLine, 0, len(readings))
	for _, r := range readings {
		lines = append(lines, MetricLine{
			Prefix:    d.prefix,
			Device:    device,
			Name:      r.name,
			Value:     r.value,
			Timestamp: now,
		})
	}
	return lines, nil
}

// reading is one numeric ENERGY entry with its literal value.
type reading struct {
	name  string
	value string
}

// parseEnergy walks the top-level object of a SENSOR payload and returns the
// numeric ENERGY entries in the order they appear. A name repeated inside
// ENERGY keeps its first position and takes its last value.
//
// Number tokens keep their literal text. String values are kept when they
// parse as a float after trimming surrounding whitespace. Anything else
// (booleans, null, nested values, non-numeric strings) is skipped.
func parseEnergy(payload []byte) ([]reading, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedPayload)
	}

	iter := jsonAPI.BorrowIterator(payload)
	defer jsonAPI.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}

	var (
		readings []reading
		numeric  []bool
		index    map[string]int
		found    bool
		badShape bool
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		if key != energyField {
			it.Skip()
			return true
		}
		if it.WhatIsNext() != jsoniter.ObjectValue {
			badShape = true
			return false
		}
		// Duplicate keys: the last ENERGY object wins.
		found = true
		readings, numeric = readings[:0], numeric[:0]
		index = make(map[string]int)
		return it.ReadObjectCB(func(it *jsoniter.Iterator, name string) bool {
			value, ok := numericValue(it)
			if i, seen := index[name]; seen {
				readings[i].value, numeric[i] = value, ok
				return true
			}
			index[name] = len(readings)
			readings = append(readings, reading{name: name, value: value})
			numeric = append(numeric, ok)
			return true
		})
	})

	if iter.Error != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, iter.Error)
	}
	if badShape {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMalformedPayload, energyField)
	}
	if !found {
		return nil, ErrMissingEnergy
	}

	kept := readings[:0]
	for i, r := range readings {
		if numeric[i] {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// numericValue consumes the next value from it and reports whether it is a
// number, returning its literal representation.
func numericValue(it *jsoniter.Iterator) (string, bool) {
	switch it.WhatIsNext() {
	case jsoniter.NumberValue:
		literal := string(it.ReadNumber())
		return literal, isNumber(literal)
	case jsoniter.StringValue:
		s := strings.TrimSpace(it.ReadString())
		return s, isNumber(s)
	default:
		it.Skip()
		return "", false
	}
}

// isNumber reports whether s parses as a float. Values outside the float64
// range still count as numbers.
func isNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil || errors.Is(err, strconv.ErrRange)
}
