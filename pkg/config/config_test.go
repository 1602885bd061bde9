package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\npostgres:\n  url: postgres://localhost/db\n"))
	require.NoError(t, err)

	require.Equal(t, "test", cfg.Env)
	require.Equal(t, ":3000", cfg.HTTP.Port)
	require.Equal(t, 4*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, 50, cfg.Outbox.BatchSize)
	require.Equal(t, 5*time.Minute, cfg.Recovery.HoldTTL)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 168*time.Hour, cfg.Notification.DedupTTL)
	require.Equal(t, "localhost:4318", cfg.Tracing.Endpoint)
	require.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestTracerConfig(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg, err := Load(writeConfig(t, "env: prod\ntracing:\n  sample_ratio: 0.25\n  service_version: 1.4.2\n"))
	require.NoError(t, err)

	tc := cfg.TracerConfig("order-service")
	require.Equal(t, "order-service", tc.ServiceName)
	require.Equal(t, "1.4.2", tc.ServiceVersion)
	require.Equal(t, "prod", tc.Env)
	require.Equal(t, "collector:4318", tc.Endpoint)
	require.Equal(t, 0.25, tc.SampleRatio)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("HTTP_PORT", ":8081")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RESERVATION_HOLD_TTL", "90s")

	cfg, err := Load(writeConfig(t, "http:\n  port: \":3000\"\nrecovery:\n  hold_ttl: 5m\n"))
	require.NoError(t, err)

	require.Equal(t, ":8081", cfg.HTTP.Port)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 90*time.Second, cfg.Recovery.HoldTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{Env: "prod", Logger: Logger{Level: "warn"}}

	logger, err := NewLogger(cfg.LoggerConfig("order-service"))
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(-1))

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	require.Error(t, err)
}
