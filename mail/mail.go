package mail

import (
	"context"
	"io"
	netmail "net/mail"
	"strings"

	"github.com/pkg/errors"
)

// Sender sends emails via SMTP.
type Sender interface {
	Send(ctx context.Context, emails ...Email) error
	io.Closer
}

// Email is the envelope of a single message.
type Email struct {
	From    string   // "john@example.com"
	To      []string // at least one recipient
	Subject string   // may contain non-ASCII

	// Body is a reference to the text body: a local path or s3://bucket/key.
	Body string
	// Attachments are references in the same form as Body.
	Attachments []string
}

var (
	ErrNoFrom       = errors.New("no from address specified")
	ErrNoRecipients = errors.New("no recipients specified")
	ErrNoBody       = errors.New("no body source specified")
)

// ParseAddressList splits a comma-delimited address string, trimming
// whitespace and dropping empty items.
func ParseAddressList(s string) []string {
	return splitList(s)
}

// ParseRefList splits a comma-delimited list of body or attachment references.
func ParseRefList(s string) []string {
	return splitList(s)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateAddress reports whether addr is a bare local@domain mailbox.
func ValidateAddress(addr string) error {
	parsed, err := netmail.ParseAddress(addr)
	if err != nil {
		return errors.Wrapf(err, "invalid address %q", addr)
	}
	if parsed.Name != "" || parsed.Address != addr {
		return errors.Errorf("invalid address %q: display names and brackets are not allowed", addr)
	}
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return errors.Errorf("invalid address %q: expected local@domain", addr)
	}
	return nil
}

// Validate checks the envelope invariants.
func (e Email) Validate() error {
	if e.From == "" {
		return ErrNoFrom
	}
	if err := ValidateAddress(e.From); err != nil {
		return errors.Wrap(err, "from")
	}
	if len(e.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range e.To {
		if err := ValidateAddress(to); err != nil {
			return errors.Wrap(err, "to")
		}
	}
	if e.Body == "" {
		return ErrNoBody
	}
	return nil
}
