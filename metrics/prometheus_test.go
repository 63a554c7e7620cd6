package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitPrometheus(t *testing.T) {
	original := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(original) })

	reg := prometheus.NewRegistry()
	provider, err := InitPrometheus(reg)
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	counter, err := otel.Meter("github.com/pure-golang/smtpmail/metrics").Int64Counter("smtp_test_events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "smtp_test_events_total")
}

func TestInitPrometheus_Twice(t *testing.T) {
	original := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(original) })

	reg := prometheus.NewRegistry()
	first, err := InitPrometheus(reg)
	require.NoError(t, err)
	defer first.Shutdown(context.Background())

	second, err := InitPrometheus(reg)
	require.NoError(t, err)
	defer second.Shutdown(context.Background())
}
