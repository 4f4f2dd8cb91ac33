package observability

import (
	"testing"

	"github.com/smallbiznis/spendwise/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaultsServiceName(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_PROTOCOL", "")

	cfg := LoadConfig(config.Config{OTLPProtocol: "grpc", OTLPEndpoint: " collector:4317 "})
	assert.Equal(t, "spendwise", cfg.ServiceName)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
}

func TestLoadConfigMetricsProtocolOverride(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_PROTOCOL", "HTTP")

	cfg := LoadConfig(config.Config{AppName: "spendwise-scheduler", OTLPProtocol: "grpc"})
	assert.Equal(t, "spendwise-scheduler", cfg.ServiceName)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
}

func TestDebugFollowsLogLevelAndEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	assert.True(t, LoadConfig(config.Config{Environment: "development"}).Debug())
	assert.False(t, LoadConfig(config.Config{Environment: "production"}).Debug())

	t.Setenv("LOG_LEVEL", "DEBUG")
	assert.True(t, LoadConfig(config.Config{Environment: "production"}).Debug())
}
