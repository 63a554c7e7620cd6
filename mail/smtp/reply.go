package smtp

import (
	"strconv"
	"strings"
)

// ReplyCode is a three-digit SMTP reply code (RFC 5321 §4.2).
type ReplyCode int

// Reply codes used by the client dialog.
const (
	ReplyServiceReady   ReplyCode = 220
	ReplyServiceClosing ReplyCode = 221
	ReplyAuthOK         ReplyCode = 235
	ReplyOK             ReplyCode = 250
	ReplyAuthContinue   ReplyCode = 334
	ReplyStartMailInput ReplyCode = 354
)

// Class returns the first digit of the code.
func (c ReplyCode) Class() int {
	return int(c) / 100
}

// IsTransient reports whether the code is a 4xx temporary failure.
func (c ReplyCode) IsTransient() bool {
	return c.Class() == 4
}

// IsPermanent reports whether the code is a 5xx permanent failure.
func (c ReplyCode) IsPermanent() bool {
	return c.Class() == 5
}

// Reply is one complete, possibly multi-line, server reply.
type Reply struct {
	Code  ReplyCode
	Lines []string // text after the code and separator
}

// Text returns the reply text with lines joined by newlines.
func (r Reply) Text() string {
	return strings.Join(r.Lines, "\n")
}

// String renders the reply as it appeared on the wire, without CRLFs.
func (r Reply) String() string {
	code := strconv.Itoa(int(r.Code))
	if len(r.Lines) == 0 {
		return code
	}
	var b strings.Builder
	for i, line := range r.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(code)
		if i < len(r.Lines)-1 {
			b.WriteByte('-')
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}
	return b.String()
}
