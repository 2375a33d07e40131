package process

import "errors"

var (
	// ErrLaunchFailure indicates a child process could not be spawned
	ErrLaunchFailure = errors.New("launch failure")

	// ErrInvalidState indicates an operation was attempted in a lifecycle
	// state that does not permit it
	ErrInvalidState = errors.New("invalid state")

	// ErrForcedKill indicates a process ignored its shutdown signal and had
	// to be killed. Callers usually treat this as a warning rather than a
	// hard failure: the process is gone either way.
	ErrForcedKill = errors.New("forced kill")

	// ErrUnsupported indicates the requested signal or operation is not
	// available
	ErrUnsupported = errors.New("unsupported")
)
