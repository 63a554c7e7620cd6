package smtp

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK            = "ok"
	statusProtocolError = "protocol_error"
	statusError         = "error"
)

var (
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smtp_command_duration_seconds",
			Help:    "Duration of SMTP command/reply exchanges",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	commandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtp_commands_total",
			Help: "SMTP commands sent, by outcome",
		},
		[]string{"command", "status"},
	)

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtp_messages_total",
			Help: "Messages handed to the SMTP server, by outcome",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(commandDuration)
	prometheus.MustRegister(commandTotal)
	prometheus.MustRegister(messagesTotal)
}

func status(err error) string {
	if err == nil {
		return statusOK
	}
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return statusProtocolError
	}
	return statusError
}

func recordCommand(command string, err error, d time.Duration) {
	commandDuration.WithLabelValues(command).Observe(d.Seconds())
	commandTotal.WithLabelValues(command, status(err)).Inc()
}

func recordMessage(err error) {
	messagesTotal.WithLabelValues(status(err)).Inc()
}
