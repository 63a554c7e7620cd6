package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Config controls how collected metrics leave the process. A one-shot run
// pushes them to a Pushgateway on Close; a long batch may also expose a
// scrape endpoint. Both are off by default.
type Config struct {
	Host                  string `envconfig:"METRICS_HOST" default:"127.0.0.1"`
	Port                  int    `envconfig:"METRICS_PORT" default:"0"` // 0 disables the scrape endpoint
	HttpServerReadTimeout int    `envconfig:"METRICS_READ_TIMEOUT" default:"30"`

	PushURL     string        `envconfig:"METRICS_PUSH_URL"` // Pushgateway base URL
	Job         string        `envconfig:"METRICS_JOB" default:"smtpsend"`
	PushTimeout time.Duration `envconfig:"METRICS_PUSH_TIMEOUT" default:"10s"`
}

type Metrics struct {
	config   Config
	server   *http.Server
	pusher   *push.Pusher
	provider *metric.MeterProvider
}

// InitDefault creates Metrics and starts collecting.
func InitDefault(config Config) (*Metrics, error) {
	provider := New(config)
	if err := provider.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start metrics")
	}

	return provider, nil
}

func New(config Config) *Metrics {
	m := &Metrics{config: config}
	if config.Port > 0 {
		m.server = NewHttpServer(config)
	}
	if config.PushURL != "" {
		m.pusher = NewPusher(config, prometheus.DefaultGatherer)
	}
	return m
}

func (s *Metrics) Start() error {
	provider, err := InitPrometheus(prometheus.DefaultRegisterer)
	if err != nil {
		return errors.Wrap(err, "failed to init prometheus")
	}
	s.provider = provider

	if s.server != nil {
		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Default().Warn("metrics server failed", "error", err.Error())
			}
		}()
	}

	return nil
}

// Push sends the current values to the Pushgateway, replacing the job's
// previous group. It does nothing when no Pushgateway is configured.
func (s *Metrics) Push(ctx context.Context) error {
	if s.pusher == nil {
		return nil
	}
	if err := s.pusher.PushContext(ctx); err != nil {
		return errors.Wrapf(err, "failed to push metrics to %s", s.config.PushURL)
	}
	return nil
}

// Close pushes the final values, then stops the scrape endpoint and the
// meter provider.
func (s *Metrics) Close() error {
	ctx := context.Background()
	if s.config.PushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.PushTimeout)
		defer cancel()
	}
	pushErr := s.Push(ctx)

	if s.provider != nil {
		if err := s.provider.Shutdown(ctx); err != nil {
			slog.Default().Warn("failed to shut down meter provider", "error", err.Error())
		}
	}

	if s.server != nil {
		if err := s.server.Close(); err != nil {
			return errors.Wrap(err, "failed to close metrics")
		}
	}

	return pushErr
}

func NewHttpServer(conf Config) *http.Server {
	r := http.NewServeMux()
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:        fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:     r,
		ReadTimeout: time.Duration(conf.HttpServerReadTimeout) * time.Second,
	}
}

func NewPusher(conf Config, g prometheus.Gatherer) *push.Pusher {
	return push.New(conf.PushURL, conf.Job).Gatherer(g)
}
