package observability

import (
	"github.com/smallbiznis/spendwise/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the OTel governance meters and registers the scheduler's
// prometheus collectors on the default registry served at /metrics.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		metricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
	fx.Invoke(registerSchedulerMetrics),
)

func metricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

func registerSchedulerMetrics(cfg Config, mcfg metrics.Config, log *zap.Logger) {
	metrics.SchedulerWithConfig(mcfg)
	log.Named("observability").Info("observability configured",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.Bool("otel_metrics", cfg.OtelEnabled),
		zap.Bool("debug", cfg.Debug()),
	)
}
