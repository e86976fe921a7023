package scout

import "errors"

var (
	// ErrAlreadyStarted is returned by Start when the service is running.
	ErrAlreadyStarted = errors.New("scout: already started")

	// ErrNotStarted is returned by operations that need a running service.
	ErrNotStarted = errors.New("scout: not started")
)
