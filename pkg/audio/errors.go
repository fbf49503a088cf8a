package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow indicates a transient capture overrun. The frame is lost but
	// the stream keeps working.
	ErrOverflow = errors.New("audio device overflow")

	// ErrDeviceFault indicates an unrecoverable hardware or stream failure.
	ErrDeviceFault = errors.New("audio device fault")

	// ErrClosed is the cause reported when a stream is used after Close.
	ErrClosed = errors.New("audio stream closed")
)

// DeviceError wraps a backend error with its classification.
type DeviceError struct {
	Op       string // "read", "write", "open"
	Err      error
	Overflow bool
}

func (e *DeviceError) Error() string {
	class := "fault"
	if e.Overflow {
		class = "overflow"
	}
	if e.Err == nil {
		return fmt.Sprintf("audio %s: %s", e.Op, class)
	}
	return fmt.Sprintf("audio %s: %s: %v", e.Op, class, e.Err)
}

// Unwrap exposes both the classification sentinel and the underlying cause.
func (e *DeviceError) Unwrap() []error {
	class := ErrDeviceFault
	if e.Overflow {
		class = ErrOverflow
	}
	if e.Err == nil {
		return []error{class}
	}
	return []error{class, e.Err}
}

// NewOverflowError creates a transient overflow error.
func NewOverflowError(op string, err error) error {
	return &DeviceError{Op: op, Err: err, Overflow: true}
}

// NewFaultError creates a fatal device error.
func NewFaultError(op string, err error) error {
	return &DeviceError{Op: op, Err: err}
}

// IsOverflow checks if an error is a transient overflow.
func IsOverflow(err error) bool {
	return errors.Is(err, ErrOverflow)
}

// IsFault checks if an error is a fatal device fault.
func IsFault(err error) bool {
	return errors.Is(err, ErrDeviceFault)
}
