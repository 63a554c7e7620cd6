package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pure-golang/smtpmail/env"
	"github.com/pure-golang/smtpmail/logger"
	"github.com/pure-golang/smtpmail/mail"
	"github.com/pure-golang/smtpmail/mail/noop"
	"github.com/pure-golang/smtpmail/mail/smtp"
	"github.com/pure-golang/smtpmail/metrics"
	"github.com/pure-golang/smtpmail/source"
	"github.com/pure-golang/smtpmail/storage"
	"github.com/pure-golang/smtpmail/storage/minio"
	"github.com/pure-golang/smtpmail/tracing"
	"github.com/pure-golang/smtpmail/tracing/jaeger"
)

const (
	exitOK = iota
	exitSendFailed
	exitBadConfig
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// fileList collects repeated file flags.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("smtpsend", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var files, iniFiles fileList
	fs.Var(&files, "env", "env file to load, may be repeated (default .env if present)")
	fs.Var(&iniFiles, "config", "INI file with [smtp], [email] and other sections, may be repeated")
	dryRun := fs.Bool("dry-run", false, "validate and log the email without sending it")
	if err := fs.Parse(args); err != nil {
		return exitBadConfig
	}

	if err := env.LoadINI(iniFiles...); err != nil {
		fmt.Fprintf(stderr, "smtpsend: %v\n", err)
		return exitBadConfig
	}

	cfg, err := loadConfig(files, *dryRun)
	if err != nil {
		fmt.Fprintf(stderr, "smtpsend: %v\n", err)
		return exitBadConfig
	}

	l := logger.InitDefault(cfg.Logger)
	ctx = logger.NewContext(ctx, l)

	maxSize, err := cfg.Email.MaxBytes()
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("invalid configuration")
		return exitBadConfig
	}

	if cfg.Tracing.Enabled() {
		provider, err := tracing.Init(jaeger.NewProviderBuilder(cfg.Tracing))
		if err != nil {
			logger.FromContextWithErr(ctx, err).Warn("tracing disabled")
		}
		defer closeLogged(l, "tracing", provider)
	}

	m, err := metrics.InitDefault(cfg.Metrics)
	if err != nil {
		logger.FromContextWithErr(ctx, err).Warn("metrics disabled")
	} else {
		defer closeLogged(l, "metrics", m)
	}

	var st storage.Storage
	if cfg.Storage.Enabled() {
		s, err := minio.NewDefault(ctx, cfg.Storage)
		if err != nil {
			logger.FromContextWithErr(ctx, err).Error("object storage unavailable", "endpoint", cfg.Storage.Endpoint)
			return exitBadConfig
		}
		defer closeLogged(l, "storage", s)
		st = s
	}

	var sender mail.Sender
	if cfg.Email.DryRun {
		sender = noop.NewSender(l)
	} else {
		sender = smtp.NewSender(cfg.SMTP, &smtp.SenderOptions{
			Logger:         l,
			Opener:         source.NewRouter(st),
			MaxMessageSize: maxSize,
		})
	}
	defer closeLogged(l, "sender", sender)

	email := cfg.Email.Email()
	if err := sender.Send(ctx, email); err != nil {
		logger.FromContextWithErr(ctx, err).Error("email not sent",
			"from", email.From,
			"to", email.To,
			"server", cfg.SMTP.Server,
		)
		return exitSendFailed
	}

	l.Info("email sent",
		"from", email.From,
		"to", email.To,
		"attachments", len(email.Attachments),
		"dry_run", cfg.Email.DryRun,
	)
	return exitOK
}

func closeLogged(l *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		l.Warn("failed to close "+name, "error", err.Error())
	}
}
