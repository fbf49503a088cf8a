package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport indicates the connection to the service failed. The
	// session is unusable afterwards.
	ErrTransport = errors.New("session transport error")

	// ErrClosed is the cause reported when a closed session is used.
	ErrClosed = errors.New("session closed")
)

// TransportError wraps a connection failure.
type TransportError struct {
	Op  string // "connect", "setup", "send", "receive"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrTransport and the underlying cause.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// NewTransportError creates a transport error for op.
func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransport checks if an error is a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
