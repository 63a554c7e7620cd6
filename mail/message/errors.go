package message

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBoundaryCollision means no generated boundary was absent from the content.
	ErrBoundaryCollision = errors.New("could not pick a boundary absent from message content")
	// ErrMessageTooLarge means the composed message exceeds Options.MaxSize.
	ErrMessageTooLarge = errors.New("message too large")
)

// IOError reports an unreadable body or attachment source.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
