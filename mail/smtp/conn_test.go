package smtp

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readerConn(raw string) *conn {
	return &conn{r: bufio.NewReaderSize(strings.NewReader(raw), 16)}
}

func TestConn_ReadReply(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		code  ReplyCode
		lines []string
	}{
		{"single line", "250 OK\r\n", ReplyOK, []string{"OK"}},
		{"code only", "250\r\n", ReplyOK, []string{""}},
		{"multi line", "250-mail.test\r\n250-SIZE 35882577\r\n250 AUTH LOGIN PLAIN\r\n", ReplyOK,
			[]string{"mail.test", "SIZE 35882577", "AUTH LOGIN PLAIN"}},
		{"empty text", "221 \r\n", ReplyServiceClosing, []string{""}},
		{"long line across buffer", "220 " + strings.Repeat("x", 100) + "\r\n", ReplyServiceReady,
			[]string{strings.Repeat("x", 100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := readerConn(tt.raw).readReply()
			require.NoError(t, err)
			assert.Equal(t, tt.code, reply.Code)
			assert.Equal(t, tt.lines, reply.Lines)
		})
	}
}

func TestConn_ReadReply_ReadsOneReplyAtATime(t *testing.T) {
	c := readerConn("334 VXNlcm5hbWU6\r\n334 UGFzc3dvcmQ6\r\n")

	first, err := c.readReply()
	require.NoError(t, err)
	assert.Equal(t, []string{"VXNlcm5hbWU6"}, first.Lines)

	second, err := c.readReply()
	require.NoError(t, err)
	assert.Equal(t, []string{"UGFzc3dvcmQ6"}, second.Lines)
}

func TestConn_ReadReply_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"short", "25\r\n", errShortLine},
		{"empty line", "\r\n", errShortLine},
		{"letters", "abc OK\r\n", errBadCode},
		{"code out of range", "099 OK\r\n", errBadCode},
		{"code mismatch", "250-first\r\n251 second\r\n", errCodeMismatch},
		{"bad separator", "250xOK\r\n", errBadSeparator},
		{"invalid utf8", "250 \xff\xfe\r\n", errInvalidUTF8},
		{"too long", "250 " + strings.Repeat("a", maxReplyLineLen) + "\r\n", errLineTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readerConn(tt.raw).readReply()

			var derr *DecodeError
			require.True(t, errors.As(err, &derr), "got %v", err)
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}

func TestConn_ReadReply_EOF(t *testing.T) {
	_, err := readerConn("").readReply()
	assert.True(t, errors.Is(err, io.EOF))

	// stream ends inside a multi-line reply
	_, err = readerConn("250-mail.test\r\n").readReply()
	assert.True(t, errors.Is(err, io.EOF))

	var derr *DecodeError
	assert.False(t, errors.As(err, &derr))
}

func TestConn_WriteLine(t *testing.T) {
	var buf bytes.Buffer
	c := &conn{w: bufio.NewWriter(&buf)}

	require.NoError(t, c.writeLine("HELO mail.test"))
	assert.Equal(t, "HELO mail.test\r\n", buf.String())
}

func TestConn_WriteData(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"plain", "Subject: x\r\n\r\nhello\r\n", "Subject: x\r\n\r\nhello\r\n.\r\n"},
		{"dot stuffing", "a\r\n.b\r\n..c\r\n", "a\r\n..b\r\n...c\r\n.\r\n"},
		{"leading dot", ".\r\n", "..\r\n.\r\n"},
		{"dot mid line untouched", "a.b\r\n", "a.b\r\n.\r\n"},
		{"no trailing line break", "hello", "hello\r\n.\r\n"},
		{"empty", "", ".\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := &conn{w: bufio.NewWriter(&buf)}

			require.NoError(t, c.writeData([]byte(tt.msg)))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestReply_String(t *testing.T) {
	assert.Equal(t, "250", Reply{Code: ReplyOK}.String())
	assert.Equal(t, "250 OK", Reply{Code: ReplyOK, Lines: []string{"OK"}}.String())
	assert.Equal(t, "250-a\n250 b", Reply{Code: ReplyOK, Lines: []string{"a", "b"}}.String())
	assert.Equal(t, "a\nb", Reply{Code: ReplyOK, Lines: []string{"a", "b"}}.Text())
}

func TestReplyCode_Class(t *testing.T) {
	assert.Equal(t, 2, ReplyOK.Class())
	assert.True(t, ReplyCode(421).IsTransient())
	assert.False(t, ReplyCode(421).IsPermanent())
	assert.True(t, ReplyCode(550).IsPermanent())
	assert.False(t, ReplyOK.IsTransient())
}
