package telemetry

import "errors"

// Decode failures. A failed decode never produces partial output.
var (
	// ErrInvalidTopic is returned when a topic does not have the
	// {prefix}/{device}/{kind} shape.
	ErrInvalidTopic = errors.New("telemetry: invalid device topic")

	// ErrMalformedPayload is returned when a SENSOR payload is not a UTF-8
	// JSON object.
	ErrMalformedPayload = errors.New("telemetry: malformed sensor payload")

	// ErrMissingEnergy is returned when a SENSOR payload has no ENERGY object.
	ErrMissingEnergy = errors.New("telemetry: sensor payload has no ENERGY object")
)
