package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrOfferNotFound  = errors.New("offer not found")
	ErrNotInRoom      = errors.New("not in a room")
	ErrBadRequest     = errors.New("bad request")
	ErrJoinFailed     = errors.New("join failed")
	ErrSignalingError = errors.New("signaling server error")
	ErrClosed         = errors.New("signaling connection closed")
	ErrNotConnected   = errors.New("signaling client not connected")
	ErrEmptyPayload   = errors.New("empty payload")
	ErrAlreadyReplied = errors.New("offer request already answered")
)

// Error is returned by every Client operation that fails.
// Err is one of the sentinels above (or a transport/context error) so
// callers can branch with errors.Is.
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

// codeToError maps a service error code to its sentinel.
func codeToError(code string) error {
	switch code {
	case CodeRoomNotFound:
		return ErrRoomNotFound
	case CodeRoomFull:
		return ErrRoomFull
	case CodeOfferNotFound:
		return ErrOfferNotFound
	case CodeNotInRoom:
		return ErrNotInRoom
	case CodeBadRequest:
		return ErrBadRequest
	case CodeJoinFailed:
		return ErrJoinFailed
	default:
		return ErrSignalingError
	}
}
