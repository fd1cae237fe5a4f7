package bridge

import "errors"

// Sentinel errors for bridge operations.
var (
	// ErrUnknownEntity indicates a command arrived for an entity the
	// bridge is not tracking.
	ErrUnknownEntity = errors.New("bridge: unknown entity")

	// ErrBadPayload indicates a command payload could not be parsed.
	ErrBadPayload = errors.New("bridge: bad command payload")
)
