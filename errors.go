package tether

import "errors"

var (
	// ErrNoBaseURL is returned by New when the configuration has no base URL.
	ErrNoBaseURL = errors.New("tether: base URL is required")

	// ErrInvalidConfig is returned when a configuration value cannot be used.
	ErrInvalidConfig = errors.New("tether: invalid config")

	// ErrClosed is returned when operating on a closed Client.
	ErrClosed = errors.New("tether: client has been closed")
)
