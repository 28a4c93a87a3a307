package webrtc

import (
	"errors"
	"fmt"
)

var (
	ErrChannelNotOpen   = errors.New("channel not open")
	ErrConnectionFailed = errors.New("connection failed")
	ErrClosed           = errors.New("link closed")
)

type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *LinkError {
	return &LinkError{Op: op, Err: err}
}
