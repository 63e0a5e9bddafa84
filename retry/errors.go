package retry

import "errors"

// ErrCircuitOpen is returned by CircuitBreaker.Allow while the circuit is open.
var ErrCircuitOpen = errors.New("retry: circuit open")
