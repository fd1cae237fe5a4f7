package device

import "errors"

var (
	// ErrNotFound reports a device ID the registry has never seen.
	// Callers match it with errors.Is.
	ErrNotFound = errors.New("device: not found")

	// ErrOutOfRange reports a conversion input outside its documented
	// range.
	ErrOutOfRange = errors.New("device: value out of range")
)
