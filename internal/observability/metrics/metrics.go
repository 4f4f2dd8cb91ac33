package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes governance instruments.
type Metrics struct {
	decisions     metric.Int64Counter
	savings       metric.Int64Counter
	escalations   metric.Int64Counter
	notifications metric.Int64Counter
	keystoneTools metric.Int64Counter
}

// NewProvider installs the global meter provider. With OTLP disabled a noop
// provider keeps the instruments cheap.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", valueOr(cfg.ServiceName, "spendwise")),
		attribute.String("deployment.environment", valueOr(cfg.Environment, "unknown")),
	))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		},
	})

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

const exportInterval = 10 * time.Second

// New creates the governance counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(valueOr(cfg.ServiceName, "spendwise"))
	m := &Metrics{}
	for _, inst := range []struct {
		target      *metric.Int64Counter
		name, unit  string
		description string
	}{
		{&m.decisions, "spendwise_decisions_total", "{decision}", "Engine runs by decision type and outcome."},
		{&m.savings, "spendwise_decision_savings_cents_total", "{cent}", "Projected monthly savings of created decisions."},
		{&m.escalations, "spendwise_escalations_total", "{escalation}", "Escalation actions by level and outcome."},
		{&m.notifications, "spendwise_notifications_total", "{notification}", "Delivery attempts by channel and result."},
		{&m.keystoneTools, "spendwise_keystone_tools_scored_total", "{tool}", "Tools scored by keystone recomputation."},
	} {
		counter, err := meter.Int64Counter(inst.name,
			metric.WithUnit(inst.unit),
			metric.WithDescription(inst.description),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", inst.name, err)
		}
		*inst.target = counter
	}
	return m, nil
}

// RecordDecision counts an engine run by decision type and outcome.
func (m *Metrics) RecordDecision(ctx context.Context, decisionType, outcome string, savingsCents int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("decision_type", strings.TrimSpace(decisionType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
	if savingsCents > 0 {
		m.savings.Add(ctx, savingsCents, metric.WithAttributes(attrs...))
	}
}

// RecordEscalation counts an escalation action for a level.
func (m *Metrics) RecordEscalation(ctx context.Context, level int, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("level", strconv.Itoa(level)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.escalations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotification counts a delivery attempt per channel.
func (m *Metrics) RecordNotification(ctx context.Context, channel, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordKeystoneRecompute counts scored tools, split by keystone flag.
func (m *Metrics) RecordKeystoneRecompute(ctx context.Context, scored, keystones int) {
	if m == nil {
		return
	}
	if keystones > 0 {
		m.keystoneTools.Add(ctx, int64(keystones), metric.WithAttributes(FilterAttributes(attribute.String("result", "keystone"))...))
	}
	if rest := scored - keystones; rest > 0 {
		m.keystoneTools.Add(ctx, int64(rest), metric.WithAttributes(FilterAttributes(attribute.String("result", "regular"))...))
	}
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"decision_type": {},
	"outcome":       {},
	"level":         {},
	"channel":       {},
	"result":        {},
	"reason":        {},
	"job":           {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
