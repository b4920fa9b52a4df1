package chain

import "errors"

// ErrUnavailable is returned when every configured endpoint for a chain
// failed. Callers must treat the result as unknown, never as zero.
var ErrUnavailable = errors.New("chain unavailable")
