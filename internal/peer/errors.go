package peer

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState = errors.New("operation not allowed in current state")
	ErrLinkReleased = errors.New("link already handed over")
)

// Error records which negotiation step failed.
type Error struct {
	Op    string
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, state State, err error) *Error {
	return &Error{Op: op, State: state, Err: err}
}
