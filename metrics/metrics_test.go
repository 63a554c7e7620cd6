package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushRequest struct {
	method string
	path   string
	body   []byte
}

// pushgateway records requests and answers with status.
func pushgateway(t *testing.T, status int) (*httptest.Server, func() []pushRequest) {
	t.Helper()
	var (
		mx   sync.Mutex
		reqs []pushRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mx.Lock()
		reqs = append(reqs, pushRequest{method: r.Method, path: r.URL.Path, body: body})
		mx.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []pushRequest {
		mx.Lock()
		defer mx.Unlock()
		return append([]pushRequest(nil), reqs...)
	}
}

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smtp_messages_total",
		Help: "test",
	}, []string{"status"})
	reg.MustRegister(c)
	c.WithLabelValues("ok").Inc()
	return reg
}

func TestNew(t *testing.T) {
	t.Run("everything disabled", func(t *testing.T) {
		m := New(Config{Job: "smtpsend"})

		assert.Nil(t, m.server)
		assert.Nil(t, m.pusher)
		assert.NoError(t, m.Push(context.Background()))
		assert.NoError(t, m.Close())
	})

	t.Run("scrape endpoint", func(t *testing.T) {
		m := New(Config{Host: "127.0.0.1", Port: 9090, HttpServerReadTimeout: 15})

		require.NotNil(t, m.server)
		assert.Equal(t, "127.0.0.1:9090", m.server.Addr)
		assert.Equal(t, 15*time.Second, m.server.ReadTimeout)
		assert.Nil(t, m.pusher)
	})

	t.Run("pushgateway", func(t *testing.T) {
		m := New(Config{PushURL: "http://pushgateway:9091", Job: "smtpsend"})

		assert.Nil(t, m.server)
		assert.NotNil(t, m.pusher)
	})
}

func TestNewHttpServer_ServesMetrics(t *testing.T) {
	server := NewHttpServer(Config{Host: "127.0.0.1", HttpServerReadTimeout: 30})

	listener := httptest.NewServer(server.Handler)
	defer listener.Close()

	resp, err := http.Get(listener.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPusher_Push(t *testing.T) {
	srv, requests := pushgateway(t, http.StatusOK)

	err := NewPusher(Config{PushURL: srv.URL, Job: "smtpsend"}, testRegistry(t)).
		PushContext(context.Background())
	require.NoError(t, err)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/metrics/job/smtpsend", reqs[0].path)
	assert.Contains(t, string(reqs[0].body), "smtp_messages_total")
}

func TestMetrics_Push(t *testing.T) {
	srv, requests := pushgateway(t, http.StatusOK)
	m := New(Config{PushURL: srv.URL, Job: "nightly-report"})

	require.NoError(t, m.Push(context.Background()))

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/metrics/job/nightly-report", reqs[0].path)
}

func TestMetrics_Push_GatewayError(t *testing.T) {
	srv, _ := pushgateway(t, http.StatusInternalServerError)
	m := New(Config{PushURL: srv.URL, Job: "smtpsend"})

	err := m.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to push metrics")
}

func TestMetrics_Close_Pushes(t *testing.T) {
	srv, requests := pushgateway(t, http.StatusOK)
	m := New(Config{PushURL: srv.URL, Job: "smtpsend", PushTimeout: time.Second})

	require.NoError(t, m.Close())
	assert.Len(t, requests(), 1)
}

func TestInitDefault(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}

	srv, requests := pushgateway(t, http.StatusOK)
	m, err := InitDefault(Config{
		Host:                  "127.0.0.1",
		Port:                  0,
		HttpServerReadTimeout: 5,
		PushURL:               srv.URL,
		Job:                   "smtpsend",
		PushTimeout:           time.Second,
	})
	require.NoError(t, err)

	var closer io.Closer = m
	require.NoError(t, closer.Close())
	assert.Len(t, requests(), 1)
}
