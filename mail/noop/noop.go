package noop

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/pure-golang/smtpmail/mail"
)

var _ mail.Sender = (*Sender)(nil)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("sender is closed")

// Sender is a no-op mail sender for tests and dry runs. It validates the
// envelope and logs it instead of sending.
type Sender struct {
	logger *slog.Logger
	sent   atomic.Int64
	closed atomic.Bool
}

// NewSender creates a new no-op Sender. A nil logger discards output.
func NewSender(l *slog.Logger) *Sender {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &Sender{logger: l}
}

// Send validates and discards emails.
func (n *Sender) Send(ctx context.Context, emails ...mail.Email) error {
	if n.closed.Load() {
		return ErrClosed
	}
	for _, email := range emails {
		if err := email.Validate(); err != nil {
			return err
		}
		n.logger.InfoContext(ctx, "dry run: email not sent",
			"from", email.From,
			"to", email.To,
			"subject", email.Subject,
			"attachments", len(email.Attachments),
		)
		n.sent.Add(1)
	}
	return nil
}

// Sent returns the number of emails accepted so far.
func (n *Sender) Sent() int64 {
	return n.sent.Load()
}

// Close marks the sender closed. It is safe to call more than once.
func (n *Sender) Close() error {
	n.closed.Store(true)
	return nil
}
