package room

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyConnecting = errors.New("room connection already in progress")
	ErrAlreadyConnected  = errors.New("already connected to the room")
	ErrDisconnecting     = errors.New("room is disconnecting")
	ErrConnectAborted    = errors.New("connect aborted by disconnect")
)

// Error is a room-level failure surfaced to the caller.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
