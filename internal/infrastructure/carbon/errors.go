package carbon

import "errors"

// Domain-specific errors for collector operations.
var (
	// ErrConnectionFailed is returned when the collector cannot be reached.
	ErrConnectionFailed = errors.New("carbon: connection failed")

	// ErrWriteFailed is returned when a batch could not be written in full.
	ErrWriteFailed = errors.New("carbon: write failed")
)
