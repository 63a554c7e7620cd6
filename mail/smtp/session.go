package smtp

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/smtpmail/mail"
)

// State is the protocol state of a Session.
type State int

const (
	StateUnconnected State = iota
	StateConnected
	StateAuthenticated
	StateInTransaction
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateInTransaction:
		return "in_transaction"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const redacted = "<redacted>"

// Dialer opens the byte stream to the server. *tls.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// SessionOptions contains options for creating a Session.
type SessionOptions struct {
	Logger *slog.Logger
	// Dialer replaces the default TLS dialer.
	Dialer Dialer
	// TLSConfig replaces the default TLS configuration, which validates the
	// server against the system trust store.
	TLSConfig *tls.Config
}

// Session is a single SMTP conversation over implicit TLS. It is not safe
// for concurrent use; send concurrent messages over separate sessions.
type Session struct {
	cfg    Config
	dialer Dialer
	logger *slog.Logger

	conn  *conn
	state State
	// aborted is the error that ended the dialog early; only Close is
	// accepted afterwards.
	aborted error
}

// NewSession creates an unconnected session.
func NewSession(cfg Config, opts *SessionOptions) *Session {
	if opts == nil {
		opts = &SessionOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dialer := opts.Dialer
	if dialer == nil {
		tlsConfig := opts.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		} else {
			tlsConfig = tlsConfig.Clone()
		}
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = cfg.Server
		}
		dialer = &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: cfg.ConnectTimeout},
			Config:    tlsConfig,
		}
	}

	return &Session{
		cfg:    cfg,
		dialer: dialer,
		logger: opts.Logger.WithGroup("smtp").With("server", cfg.Addr()),
		state:  StateUnconnected,
	}
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// Connect opens the TLS stream and reads the greeting.
func (s *Session) Connect(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "SMTP.Connect", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer func() { recordError(span, err) }()

	addr := s.cfg.Addr()
	span.SetAttributes(attribute.String("smtp.address", addr))

	if s.state != StateUnconnected {
		return errors.Wrapf(ErrInvalidState, "connect in state %s", s.state)
	}

	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	nc, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.state = StateClosed
		return &ConnectionError{Addr: addr, Err: err}
	}
	s.conn = newConn(nc)

	greeting, err := s.exchange(ctx, "", "", ReplyServiceReady)
	if err != nil {
		s.release()
		s.state = StateClosed
		return &ConnectionError{Addr: addr, Err: err}
	}

	s.state = StateConnected
	s.logger.Debug("connected", "greeting", greeting.Text())
	span.SetStatus(codes.Ok, "")
	return nil
}

// SendCommand writes cmd followed by CRLF and reads the reply, which must
// carry the expected code. Mail transaction commands are refused before
// authentication.
func (s *Session) SendCommand(ctx context.Context, cmd string, expect ReplyCode) (Reply, error) {
	if err := s.checkCommand(cmd); err != nil {
		return Reply{}, err
	}
	return s.sendCommand(ctx, cmd, cmd, expect)
}

// ReadResponse reads one complete reply. A zero expect skips code
// validation.
func (s *Session) ReadResponse(ctx context.Context, expect ReplyCode) (Reply, error) {
	if err := s.ready(); err != nil {
		return Reply{}, err
	}
	reply, err := s.exchange(ctx, "", "", expect)
	return reply, s.fail(err)
}

// Login greets the server with HELO and authenticates with AUTH LOGIN.
func (s *Session) Login(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "SMTP.Login", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer func() { recordError(span, err) }()

	if err := s.ready(); err != nil {
		return err
	}
	if s.state != StateConnected {
		return errors.Wrapf(ErrInvalidState, "login in state %s", s.state)
	}

	steps := []struct {
		line    string
		display string
		expect  ReplyCode
	}{
		{"HELO " + s.cfg.heloName(), "HELO " + s.cfg.heloName(), ReplyOK},
		{"AUTH LOGIN", "AUTH LOGIN", ReplyAuthContinue},
		{encodeCredential(s.cfg.Username), "AUTH " + redacted, ReplyAuthContinue},
		{encodeCredential(s.cfg.Password), "AUTH " + redacted, ReplyAuthOK},
	}
	for _, step := range steps {
		if _, err := s.sendCommand(ctx, step.line, step.display, step.expect); err != nil {
			return err
		}
	}

	s.state = StateAuthenticated
	s.logger.Debug("authenticated", "username", s.cfg.Username)
	span.SetStatus(codes.Ok, "")
	return nil
}

// SendMail runs one mail transaction: MAIL FROM, RCPT TO per recipient,
// DATA and the message. The first failing step ends the transaction.
func (s *Session) SendMail(ctx context.Context, from string, to []string, msg []byte) (err error) {
	ctx, span := tracer.Start(ctx, "SMTP.SendMail", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer func() { recordError(span, err) }()

	span.SetAttributes(
		attribute.String("smtp.from", from),
		attribute.Int("smtp.to_count", len(to)),
		attribute.Int("smtp.message_size", len(msg)),
	)

	if err := s.ready(); err != nil {
		return err
	}
	if s.state != StateAuthenticated {
		return errors.Wrapf(ErrInvalidState, "send mail in state %s", s.state)
	}
	if len(to) == 0 {
		return mail.ErrNoRecipients
	}
	for _, addr := range append([]string{from}, to...) {
		if strings.ContainsAny(addr, "\r\n<>") {
			return errors.Errorf("invalid address %q", addr)
		}
	}

	s.state = StateInTransaction

	if _, err := s.sendCommand(ctx, "MAIL FROM:<"+from+">", "", ReplyOK); err != nil {
		return err
	}
	for _, addr := range to {
		if _, err := s.sendCommand(ctx, "RCPT TO:<"+addr+">", "", ReplyOK); err != nil {
			return err
		}
	}
	if _, err := s.sendCommand(ctx, "DATA", "", ReplyStartMailInput); err != nil {
		return err
	}
	if _, err := s.sendData(ctx, msg); err != nil {
		return err
	}

	s.state = StateAuthenticated
	s.logger.Debug("message accepted", "from", from, "recipients", len(to), "size", len(msg))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Close sends QUIT and releases the stream. The stream is closed even if
// QUIT fails. Close never panics and may be called more than once; the
// returned error is informational.
func (s *Session) Close(ctx context.Context) error {
	if s.conn == nil {
		s.state = StateClosed
		return nil
	}

	var quitErr error
	if _, err := s.exchange(ctx, "QUIT", "QUIT", ReplyServiceClosing); err != nil {
		quitErr = err
		s.logger.Warn("QUIT failed", "error", err.Error())
	}

	closeErr := s.release()
	s.state = StateClosed
	if closeErr != nil {
		s.logger.Warn("closing stream failed", "error", closeErr.Error())
	}

	if quitErr != nil {
		return quitErr
	}
	return closeErr
}

func (s *Session) sendCommand(ctx context.Context, line, display string, expect ReplyCode) (Reply, error) {
	if err := s.ready(); err != nil {
		return Reply{}, err
	}
	if display == "" {
		display = line
	}
	reply, err := s.exchange(ctx, line, display, expect)
	return reply, s.fail(err)
}

func (s *Session) sendData(ctx context.Context, msg []byte) (Reply, error) {
	const display = "DATA <message>"

	if err := ctx.Err(); err != nil {
		return Reply{}, s.fail(&CommandError{Command: display, Err: err})
	}

	start := time.Now()
	stop := s.deadline(ctx)
	defer stop()

	s.logger.Debug("smtp command", "command", display, "size", len(msg))

	reply, err := func() (Reply, error) {
		if err := s.conn.writeData(msg); err != nil {
			return Reply{}, &CommandError{Command: display, Err: ctxErr(ctx, err)}
		}
		return s.read(ctx, display, ReplyOK)
	}()
	recordCommand("DATA", err, time.Since(start))

	return reply, s.fail(err)
}

// exchange writes line (unless empty) and reads the reply. The result is
// recorded in metrics and the debug transcript under display.
func (s *Session) exchange(ctx context.Context, line, display string, expect ReplyCode) (Reply, error) {
	if err := ctx.Err(); err != nil {
		if display == "" {
			return Reply{}, errors.Wrap(err, "read reply")
		}
		return Reply{}, &CommandError{Command: display, Err: err}
	}

	start := time.Now()
	stop := s.deadline(ctx)
	defer stop()

	if line != "" {
		s.logger.Debug("smtp command", "command", display)
		if err := s.conn.writeLine(line); err != nil {
			err = &CommandError{Command: display, Err: ctxErr(ctx, err)}
			recordCommand(verb(display), err, time.Since(start))
			return Reply{}, err
		}
	}

	reply, err := s.read(ctx, display, expect)
	if line != "" {
		recordCommand(verb(display), err, time.Since(start))
	}
	return reply, err
}

func (s *Session) read(ctx context.Context, display string, expect ReplyCode) (Reply, error) {
	reply, err := s.conn.readReply()
	if err != nil {
		var derr *DecodeError
		if errors.As(err, &derr) {
			return Reply{}, derr
		}
		if display == "" {
			return Reply{}, errors.Wrap(ctxErr(ctx, err), "read reply")
		}
		return Reply{}, &CommandError{Command: display, Err: ctxErr(ctx, err)}
	}

	s.logger.Debug("smtp reply", "code", int(reply.Code), "text", reply.Text())

	if expect != 0 && reply.Code != expect {
		return reply, &ProtocolError{Command: display, Expected: expect, Reply: reply}
	}
	return reply, nil
}

// deadline bounds the next exchange by the command timeout and the context
// deadline, and interrupts blocked I/O when ctx is canceled.
func (s *Session) deadline(ctx context.Context) (stop func()) {
	var dl time.Time
	if s.cfg.CommandTimeout > 0 {
		dl = time.Now().Add(s.cfg.CommandTimeout)
	}
	if ctxDl, ok := ctx.Deadline(); ok && (dl.IsZero() || ctxDl.Before(dl)) {
		dl = ctxDl
	}
	nc := s.conn.nc
	_ = nc.SetDeadline(dl)

	stopAfter := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Unix(1, 0))
	})
	return func() { stopAfter() }
}

// fail records err as the reason the dialog ended. Stream-level failures
// release the stream; after a protocol error the stream stays open so that
// Close can still say QUIT.
func (s *Session) fail(err error) error {
	if err == nil {
		return nil
	}
	s.aborted = err

	var perr *ProtocolError
	if !errors.As(err, &perr) {
		s.release()
		s.state = StateClosed
	}
	return err
}

func (s *Session) ready() error {
	if s.conn == nil {
		return errors.Wrapf(ErrInvalidState, "no open stream in state %s", s.state)
	}
	if s.aborted != nil {
		return errors.Wrapf(ErrInvalidState, "session aborted: %v", s.aborted)
	}
	return nil
}

func (s *Session) checkCommand(cmd string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(cmd) == "" {
		return &CommandError{Command: cmd, Err: errEmptyCommand}
	}
	if strings.ContainsAny(cmd, "\r\n") {
		return &CommandError{Command: cmd, Err: errBareLineBreak}
	}
	switch verb(cmd) {
	case "MAIL", "RCPT", "DATA":
		if s.state != StateAuthenticated && s.state != StateInTransaction {
			return errors.Wrapf(ErrInvalidState, "%s in state %s", verb(cmd), s.state)
		}
	}
	return nil
}

func (s *Session) release() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.close()
	s.conn = nil
	return err
}

func encodeCredential(v string) string {
	return base64.StdEncoding.EncodeToString([]byte(v))
}

// verb returns the upper-cased command keyword used as a metric label.
func verb(display string) string {
	if display == "" {
		return "REPLY"
	}
	v, _, _ := strings.Cut(display, " ")
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[:i]
	}
	return strings.ToUpper(v)
}

// ctxErr prefers the context's error when it caused the I/O failure.
func ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, err.Error())
	}
	return err
}
