package core

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomFull             = errors.New("room is full")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrMediaAccessDenied    = errors.New("media access denied")
	ErrDuplicateSession     = errors.New("duplicate peer session")
	ErrLateEvent            = errors.New("late event ignored")
	ErrClassificationFailed = errors.New("classification request failed")
	ErrSignalingClosed      = errors.New("signaling channel closed")
	ErrBackpressure         = errors.New("backpressure")
	ErrNoFrame              = errors.New("no video frame available")
)

// OpError attaches the failed operation to an underlying error.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *OpError) Unwrap() error { return e.Err }

func NewOpError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}
