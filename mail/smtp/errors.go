package smtp

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidState is returned for operations the session cannot perform in
// its current state.
var ErrInvalidState = errors.New("invalid session state")

// ConnectionError reports a failure to dial, negotiate TLS or receive the
// greeting.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("smtp: connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError reports an I/O failure while a command was exchanged.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("smtp: command %q: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ProtocolError reports a reply code other than the expected one. It is
// never retried.
type ProtocolError struct {
	Command  string // empty for unsolicited replies such as the greeting
	Expected ReplyCode
	Reply    Reply
}

func (e *ProtocolError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("smtp: expected %d, got %q", e.Expected, e.Reply.String())
	}
	return fmt.Sprintf("smtp: command %q: expected %d, got %q", e.Command, e.Expected, e.Reply.String())
}

// Temporary reports whether the server answered with a 4xx code.
func (e *ProtocolError) Temporary() bool {
	return e.Reply.Code.IsTransient()
}

// DecodeError reports a reply line that is not a well-formed SMTP reply.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("smtp: malformed reply %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
