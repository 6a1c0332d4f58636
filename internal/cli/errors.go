package cli

import (
	"errors"
	"fmt"

	"github.com/zakirhyder/huddle/internal/ui"
)

var (
	ErrJoinRejected   = errors.New("join rejected")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrRoomEnded      = errors.New("room has ended")
	ErrKicked         = errors.New("removed from room by host")
	ErrTimeout        = errors.New("timeout")
	ErrSignalingError = errors.New("signaling server error")
	ErrNotHost        = errors.New("only the host can do that")
)

// SessionError wraps an error with the operation that produced it.
type SessionError struct {
	Op      string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}

// ackError maps a coordinator ack code to a session error.
func ackError(op, code string) error {
	switch code {
	case "ROOM_NOT_FOUND":
		return NewError(op, ErrRoomNotFound)
	case "ROOM_AT_CAPACITY":
		return NewError(op, ErrRoomFull)
	case "ROOM_ENDED", "ROOM_SUSPENDED":
		return NewError(op, ErrRoomEnded)
	case "NOT_HOST":
		return NewError(op, ErrNotHost)
	default:
		return WrapError(op, ErrSignalingError, code)
	}
}

func PrintErr(err error) {
	ui.PrintError(err.Error())
}
