package session

import "errors"

var (
	// ErrAlreadyActive is returned when a start request arrives for a
	// candidate that already has a live session.
	ErrAlreadyActive = errors.New("session already active for candidate")

	// ErrNotFound is returned for operations on a candidate with no
	// active session.
	ErrNotFound = errors.New("no active session for candidate")

	// ErrDeviceUnavailable is returned when neither the camera nor the
	// microphone could be opened at start.
	ErrDeviceUnavailable = errors.New("no capture device available")

	// ErrNotStartable is returned when Start is called on a session
	// that already left the Idle state.
	ErrNotStartable = errors.New("session is not in a startable state")
)
