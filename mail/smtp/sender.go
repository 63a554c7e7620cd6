package smtp

import (
	"context"
	"crypto/tls"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/smtpmail/logger"
	"github.com/pure-golang/smtpmail/mail"
	"github.com/pure-golang/smtpmail/mail/message"
	"github.com/pure-golang/smtpmail/source"
)

var _ mail.Sender = (*Sender)(nil)

// Sender implements mail.Sender. Every message gets its own session:
// compose, connect, login, send, quit.
type Sender struct {
	mx     sync.Mutex
	cfg    Config
	opts   SenderOptions
	closed bool
}

// SenderOptions contains options for creating a Sender.
type SenderOptions struct {
	// Logger defaults to the logger carried by the Send context.
	Logger *slog.Logger
	// Opener resolves body and attachment references. Defaults to local files.
	Opener source.Opener
	// MaxMessageSize rejects larger messages before connecting. 0 disables it.
	MaxMessageSize int64

	Dialer    Dialer
	TLSConfig *tls.Config
}

// NewSender creates a new SMTP Sender.
func NewSender(cfg Config, options *SenderOptions) *Sender {
	if options == nil {
		options = &SenderOptions{}
	}
	if options.Opener == nil {
		options.Opener = source.Files{}
	}

	return &Sender{
		cfg:  cfg,
		opts: *options,
	}
}

// Send sends the emails in order and stops at the first failure.
func (s *Sender) Send(ctx context.Context, emails ...mail.Email) error {
	for _, email := range emails {
		if err := s.send(ctx, email); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) send(ctx context.Context, email mail.Email) (err error) {
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer func() {
		recordError(span, err)
		recordMessage(err)
	}()

	span.SetAttributes(
		attribute.String("smtp.from", email.From),
		attribute.String("smtp.subject", email.Subject),
		attribute.Int("smtp.to_count", len(email.To)),
		attribute.Int("smtp.attachments", len(email.Attachments)),
		attribute.String("smtp.host", s.cfg.Server),
		attribute.Int("smtp.port", s.cfg.Port),
	)

	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return errors.New("sender is closed")
	}

	l := s.opts.Logger
	if l == nil {
		l = logger.FromContext(ctx)
	}

	msg, err := message.Compose(ctx, email, &message.Options{
		Opener:  s.opts.Opener,
		MaxSize: s.opts.MaxMessageSize,
	})
	if err != nil {
		return errors.Wrap(err, "failed to compose message")
	}
	span.SetAttributes(attribute.Int("smtp.message_size", len(msg)))

	sess := NewSession(s.cfg, &SessionOptions{
		Logger:    l,
		Dialer:    s.opts.Dialer,
		TLSConfig: s.opts.TLSConfig,
	})
	if err := sess.Connect(ctx); err != nil {
		return errors.Wrap(err, "failed to connect")
	}
	defer func() {
		// QUIT still goes out when ctx was canceled mid-dialog; the command
		// timeout bounds it.
		_ = sess.Close(context.WithoutCancel(ctx))
	}()

	if err := sess.Login(ctx); err != nil {
		return errors.Wrap(err, "failed to authenticate")
	}
	if err := sess.SendMail(ctx, email.From, email.To, msg); err != nil {
		return errors.Wrap(err, "failed to send email")
	}

	l.Debug("email sent", "to", email.To, "size", len(msg))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Close closes the sender. Sessions are per message, so there is nothing
// to release.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.closed = true
	return nil
}
