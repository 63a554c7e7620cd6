package main

import (
	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"github.com/pure-golang/smtpmail/env"
	"github.com/pure-golang/smtpmail/logger"
	"github.com/pure-golang/smtpmail/mail"
	"github.com/pure-golang/smtpmail/mail/smtp"
	"github.com/pure-golang/smtpmail/metrics"
	"github.com/pure-golang/smtpmail/storage/minio"
	"github.com/pure-golang/smtpmail/tracing/jaeger"
)

// EmailConfig describes the single message a run sends.
type EmailConfig struct {
	From        string `envconfig:"EMAIL_FROM" required:"true"`
	To          string `envconfig:"EMAIL_TO" required:"true"` // a@example.com,b@example.com
	Subject     string `envconfig:"EMAIL_SUBJECT"`
	BodyFile    string `envconfig:"EMAIL_BODY_FILE" required:"true"` // path or s3://bucket/key
	Attachments string `envconfig:"EMAIL_ATTACHMENTS"`               // comma list of paths or s3:// refs
	MaxSize     string `envconfig:"EMAIL_MAX_SIZE"`                  // 25MB, 10MiB; empty disables the check
	DryRun      bool   `envconfig:"EMAIL_DRY_RUN" default:"false"`
}

func (c EmailConfig) Email() mail.Email {
	return mail.Email{
		From:        c.From,
		To:          mail.ParseAddressList(c.To),
		Subject:     c.Subject,
		Body:        c.BodyFile,
		Attachments: mail.ParseRefList(c.Attachments),
	}
}

// MaxBytes parses MaxSize. Units are binary, so 25MB is 25 MiB, the way
// mail providers state their limits.
func (c EmailConfig) MaxBytes() (int64, error) {
	if c.MaxSize == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(c.MaxSize)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid EMAIL_MAX_SIZE %q", c.MaxSize)
	}
	return n, nil
}

type config struct {
	Logger  logger.Config
	Email   EmailConfig
	SMTP    smtp.Config
	Storage minio.Config
	Tracing jaeger.Config
	Metrics metrics.Config
}

// loadConfig fills every section from the env files and the environment.
// SMTP settings are not required for a dry run.
func loadConfig(files []string, dryRun bool) (config, error) {
	var cfg config

	sections := []struct {
		name string
		dst  any
	}{
		{"logger", &cfg.Logger},
		{"email", &cfg.Email},
		{"storage", &cfg.Storage},
		{"tracing", &cfg.Tracing},
		{"metrics", &cfg.Metrics},
	}
	for _, s := range sections {
		if err := env.InitConfig(s.dst, files...); err != nil {
			return cfg, errors.Wrapf(err, "%s config", s.name)
		}
	}

	if dryRun {
		cfg.Email.DryRun = true
	}
	if !cfg.Email.DryRun {
		if err := env.InitConfig(&cfg.SMTP, files...); err != nil {
			return cfg, errors.Wrap(err, "smtp config")
		}
	}

	return cfg, nil
}
