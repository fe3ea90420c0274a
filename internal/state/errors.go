package state

import "errors"

var (
	// ErrLocked is returned when another process holds the state directory lock.
	ErrLocked = errors.New("state directory is locked by another process")

	// ErrCorruptState is returned when a state file cannot be parsed.
	ErrCorruptState = errors.New("corrupt state file")
)
