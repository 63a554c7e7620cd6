package smtp

import (
	"net"
	"strconv"
	"time"
)

// Config contains SMTP connection parameters. The connection uses implicit
// TLS (SMTPS), so the port is usually 465.
type Config struct {
	Server   string `envconfig:"SMTP_SERVER" required:"true"`   // smtp.gmail.com
	Port     int    `envconfig:"SMTP_PORT" default:"465"`       // implicit TLS port
	Username string `envconfig:"SMTP_USERNAME" required:"true"` // username or email
	Password string `envconfig:"SMTP_PASSWORD" required:"true"` // password or app password

	// HeloName is sent with HELO. Defaults to Server.
	HeloName string `envconfig:"SMTP_HELO_NAME"`

	// ConnectTimeout bounds dialing, the TLS handshake and the greeting.
	ConnectTimeout time.Duration `envconfig:"SMTP_CONNECT_TIMEOUT" default:"30s"`
	// CommandTimeout bounds each command/reply exchange.
	CommandTimeout time.Duration `envconfig:"SMTP_COMMAND_TIMEOUT" default:"60s"`
}

// Addr returns host:port of the server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

func (c Config) heloName() string {
	if c.HeloName != "" {
		return c.HeloName
	}
	return c.Server
}
