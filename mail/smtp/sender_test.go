package smtp

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/smtpmail/logger"
	"github.com/pure-golang/smtpmail/mail"
	"github.com/pure-golang/smtpmail/mail/message"
	"github.com/pure-golang/smtpmail/source"
)

func memOpener(files map[string]string) source.Opener {
	return source.OpenerFunc(func(_ context.Context, ref string) (io.ReadCloser, error) {
		data, ok := files[ref]
		if !ok {
			return nil, errors.Errorf("%s: no such file", ref)
		}
		return io.NopCloser(strings.NewReader(data)), nil
	})
}

func testEmail() mail.Email {
	return mail.Email{
		From:        "sender@mail.test",
		To:          []string{"a@test", "b@test"},
		Subject:     "Отчёт",
		Body:        "body.txt",
		Attachments: []string{"report.csv"},
	}
}

func newTestSender(srv *scriptServer, opener source.Opener) (*Sender, *pipeDialer) {
	d := &pipeDialer{srv: srv}
	return NewSender(testConfig(), &SenderOptions{
		Logger: logger.Noop(),
		Opener: opener,
		Dialer: d,
	}), d
}

func TestSender_Send(t *testing.T) {
	srv := newScriptServer(script(
		loginReplies(),
		[]string{"250 OK", "250 OK", "250 OK", "354 Go ahead", "250 2.0.0 queued", "221 Bye"},
	)...)
	s, d := newTestSender(srv, memOpener(map[string]string{
		"body.txt":   "Hello,\nsee the report attached.\n",
		"report.csv": "id,total\n1,42\n",
	}))
	defer s.Close()

	before := testutil.ToFloat64(messagesTotal.WithLabelValues(statusOK))

	require.NoError(t, s.Send(context.Background(), testEmail()))
	srv.wait()

	assert.Equal(t, 1, d.dials)
	assert.Equal(t, before+1, testutil.ToFloat64(messagesTotal.WithLabelValues(statusOK)))
	assert.Equal(t, "QUIT", srv.lines()[len(srv.lines())-1])

	data := srv.message()
	assert.Contains(t, data, "Subject: =?utf-8?b?")
	assert.Contains(t, data, "Hello,\r\nsee the report attached.\r\n")
	assert.Contains(t, data, "filename=report.csv")
}

func TestSender_Send_ComposeFailureDoesNotConnect(t *testing.T) {
	srv := newScriptServer()
	s, d := newTestSender(srv, memOpener(map[string]string{"body.txt": "hi"}))

	err := s.Send(context.Background(), testEmail())

	var ioErr *message.IOError
	require.True(t, errors.As(err, &ioErr), "got %v", err)
	assert.Equal(t, "report.csv", ioErr.Path)
	assert.Equal(t, 0, d.dials)
}

func TestSender_Send_InvalidEmail(t *testing.T) {
	srv := newScriptServer()
	s, d := newTestSender(srv, memOpener(nil))

	email := testEmail()
	email.To = nil
	err := s.Send(context.Background(), email)

	assert.True(t, errors.Is(err, mail.ErrNoRecipients))
	assert.Equal(t, 0, d.dials)
}

func TestSender_Send_RecipientRejected(t *testing.T) {
	srv := newScriptServer(script(
		loginReplies(),
		[]string{"250 OK", "550 5.1.1 no such user", "221 Bye"},
	)...)
	s, _ := newTestSender(srv, memOpener(map[string]string{"body.txt": "hi", "report.csv": "x"}))

	before := testutil.ToFloat64(messagesTotal.WithLabelValues(statusProtocolError))

	err := s.Send(context.Background(), testEmail())
	srv.wait()

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "RCPT TO:<a@test>", perr.Command)
	assert.Contains(t, err.Error(), "failed to send email")
	assert.Equal(t, before+1, testutil.ToFloat64(messagesTotal.WithLabelValues(statusProtocolError)))
	assert.Equal(t, "QUIT", srv.lines()[len(srv.lines())-1])
}

func TestSender_Send_ConnectFailure(t *testing.T) {
	dialErr := errors.New("no route to host")
	s := NewSender(testConfig(), &SenderOptions{
		Logger: logger.Noop(),
		Opener: memOpener(map[string]string{"body.txt": "hi", "report.csv": "x"}),
		Dialer: &pipeDialer{err: dialErr},
	})

	err := s.Send(context.Background(), testEmail())

	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.True(t, errors.Is(err, dialErr))
}

func TestSender_Close(t *testing.T) {
	srv := newScriptServer()
	s, d := newTestSender(srv, memOpener(nil))

	require.NoError(t, s.Close())

	err := s.Send(context.Background(), testEmail())
	assert.EqualError(t, err, "sender is closed")
	assert.Equal(t, 0, d.dials)
}

func TestSender_NilOptions(t *testing.T) {
	s := NewSender(testConfig(), nil)
	assert.IsType(t, source.Files{}, s.opts.Opener)
	assert.NoError(t, s.Close())
}
