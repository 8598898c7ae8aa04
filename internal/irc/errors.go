package irc

import "errors"

var (
	// ErrAlreadyConnected is returned by Start while a connection is active.
	ErrAlreadyConnected = errors.New("irc: connection already active")

	// ErrConnectTimeout is returned by Start when the transport did not
	// open within the configured timeout.
	ErrConnectTimeout = errors.New("irc: connect timed out")

	// ErrNotConnected is returned by Send outside the ready phase.
	ErrNotConnected = errors.New("irc: not connected")
)

// ConnectError wraps a transport-level failure to open the connection.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return "irc: connect: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
