package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointsIsNoop(t *testing.T) {
	tel, err := Setup(context.Background(), "test:telemetry", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestInitSlogLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	InitSlogWriter(&buf, false)
	slog.Debug("hidden")
	slog.Info("shown", "race_id", "202511300511")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "race_id=202511300511")

	buf.Reset()
	InitSlogWriter(&buf, true)
	slog.Debug("visible now")
	require.Contains(t, buf.String(), "visible now")
}

func TestConfigDefaults(t *testing.T) {
	interval, err := Config{}.metricInterval()
	require.NoError(t, err)
	require.Equal(t, defaultMetricInterval, interval)

	interval, err = Config{MetricInterval: "2s"}.metricInterval()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, interval)

	_, err = Config{MetricInterval: "soon"}.metricInterval()
	require.Error(t, err)

	require.Contains(t, Config{}.sampler().Description(), "AlwaysOnSampler")
	require.Contains(t, Config{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased")
}

func TestSetupFromEnvWithoutConfig(t *testing.T) {
	t.Setenv(ConfigEnv, filepath.Join(t.TempDir(), "telemetry.json5"))
	tel, err := SetupFromEnv(context.Background(), "test:telemetry")
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
}
