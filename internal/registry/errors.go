package registry

import (
	"errors"
	"fmt"
)

// Rejection kinds. Match them with errors.Is on an *Error.
var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrWarmupNotExpired  = errors.New("warm-up period has not expired yet")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Error is a trigger rejection. Its message is what the sender sees in
// the bounced response.
type Error struct {
	Kind error  // Kind is one of the Err* sentinels
	Msg  string // Msg is the user-facing reason
}

// Error returns the user-facing message.
func (e *Error) Error() string {
	return e.Msg
}

// Unwrap exposes the kind for errors.Is.
func (e *Error) Unwrap() error {
	return e.Kind
}

func malformed(format string, args ...any) *Error {
	return &Error{Kind: ErrMalformedInput, Msg: fmt.Sprintf(format, args...)}
}

func insufficient(format string, args ...any) *Error {
	return &Error{Kind: ErrInsufficientStake, Msg: fmt.Sprintf(format, args...)}
}

func unauthorized(format string, args ...any) *Error {
	return &Error{Kind: ErrUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

func warmupNotExpired() *Error {
	return &Error{Kind: ErrWarmupNotExpired, Msg: ErrWarmupNotExpired.Error()}
}
