package smtp

import (
	"bufio"
	"bytes"
	"net"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// maxReplyLineLen bounds a single reply line, CRLF included.
const maxReplyLineLen = 2048

var (
	errLineTooLong   = errors.New("reply line too long")
	errInvalidUTF8   = errors.New("reply is not valid UTF-8")
	errShortLine     = errors.New("reply line too short")
	errBadCode       = errors.New("invalid reply code")
	errCodeMismatch  = errors.New("reply code changed within a multi-line reply")
	errBadSeparator  = errors.New("invalid separator after reply code")
	errBareLineBreak = errors.New("command contains a line break")
	errEmptyCommand  = errors.New("command is empty")
)

// conn frames SMTP traffic on a byte stream: CRLF-terminated command lines
// out, complete replies in.
type conn struct {
	nc net.Conn
	r  *bufio.Reader
	w  *bufio.Writer
}

func newConn(nc net.Conn) *conn {
	return &conn{
		nc: nc,
		r:  bufio.NewReaderSize(nc, 4096),
		w:  bufio.NewWriterSize(nc, 4096),
	}
}

// writeLine writes line followed by CRLF and flushes.
func (c *conn) writeLine(line string) error {
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// writeData writes msg dot-stuffed and terminated by a lone "." line
// (RFC 5321 §4.5.2).
func (c *conn) writeData(msg []byte) error {
	lineStart := true
	for len(msg) > 0 {
		if lineStart && msg[0] == '.' {
			if err := c.w.WriteByte('.'); err != nil {
				return err
			}
		}
		i := bytes.IndexByte(msg, '\n')
		if i < 0 {
			if _, err := c.w.Write(msg); err != nil {
				return err
			}
			lineStart = false
			break
		}
		if _, err := c.w.Write(msg[:i+1]); err != nil {
			return err
		}
		msg = msg[i+1:]
		lineStart = true
	}
	if !lineStart {
		if _, err := c.w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	if _, err := c.w.WriteString(".\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// readLine reads one line without its line terminator. I/O errors are
// returned as is; an overlong line is a *DecodeError.
func (c *conn) readLine() (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, chunk...)
		if len(line) > maxReplyLineLen-2 {
			return "", &DecodeError{Line: string(line[:64]) + "...", Err: errLineTooLong}
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

// readReply reads a single or multi-line reply. Continuation lines carry
// a dash after the code, the final line a space or nothing.
func (c *conn) readReply() (Reply, error) {
	var reply Reply
	for {
		line, err := c.readLine()
		if err != nil {
			return Reply{}, err
		}
		if !utf8.ValidString(line) {
			return Reply{}, &DecodeError{Line: line, Err: errInvalidUTF8}
		}
		if len(line) < 3 {
			return Reply{}, &DecodeError{Line: line, Err: errShortLine}
		}

		n, err := strconv.Atoi(line[:3])
		if err != nil || n < 100 || n > 599 {
			return Reply{}, &DecodeError{Line: line, Err: errBadCode}
		}
		code := ReplyCode(n)
		if reply.Lines != nil && code != reply.Code {
			return Reply{}, &DecodeError{Line: line, Err: errCodeMismatch}
		}
		reply.Code = code

		if len(line) == 3 {
			reply.Lines = append(reply.Lines, "")
			return reply, nil
		}

		switch line[3] {
		case '-':
			reply.Lines = append(reply.Lines, line[4:])
		case ' ':
			reply.Lines = append(reply.Lines, line[4:])
			return reply, nil
		default:
			return Reply{}, &DecodeError{Line: line, Err: errBadSeparator}
		}
	}
}

func (c *conn) close() error {
	return c.nc.Close()
}
