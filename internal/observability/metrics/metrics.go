package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
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

// Metrics exposes billing and payment instruments.
type Metrics struct {
	billsGenerated     metric.Int64Counter
	paymentLinks       metric.Int64Counter
	paymentEvents      metric.Int64Counter
	duplicatePayments  metric.Int64Counter
	notificationsSent  metric.Int64Counter
	gatewayCallLatency metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "milkbill"
	}
	meter := provider.Meter(name)

	billsGenerated, err := meter.Int64Counter("milkbill_bills_generated_total")
	if err != nil {
		return nil, err
	}
	paymentLinks, err := meter.Int64Counter("milkbill_payment_links_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("milkbill_payment_events_total")
	if err != nil {
		return nil, err
	}
	duplicatePayments, err := meter.Int64Counter("milkbill_duplicate_settlements_total")
	if err != nil {
		return nil, err
	}
	notificationsSent, err := meter.Int64Counter("milkbill_notifications_total")
	if err != nil {
		return nil, err
	}
	gatewayCallLatency, err := meter.Float64Histogram("milkbill_gateway_call_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billsGenerated:     billsGenerated,
		paymentLinks:       paymentLinks,
		paymentEvents:      paymentEvents,
		duplicatePayments:  duplicatePayments,
		notificationsSent:  notificationsSent,
		gatewayCallLatency: gatewayCallLatency,
	}, nil
}

// RecordBillGenerated counts bills written by the aggregator.
func (m *Metrics) RecordBillGenerated(ctx context.Context, linkSource string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("link_source", strings.TrimSpace(linkSource)))
	m.billsGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentLink counts link creation outcomes; "fallback" means the gateway failed.
func (m *Metrics) RecordPaymentLink(ctx context.Context, linkSource string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("link_source", strings.TrimSpace(linkSource)))
	m.paymentLinks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent counts reconciliation outcomes per entry path.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDuplicateSettlement counts a second successful transaction against a Paid bill.
func (m *Metrics) RecordDuplicateSettlement(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.duplicatePayments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotification(ctx context.Context, channel, category, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("category", strings.TrimSpace(category)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.notificationsSent.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) ObserveGatewayCall(ctx context.Context, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", outcome),
	)
	m.gatewayCallLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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
	"link_source": {},
	"source":      {},
	"outcome":     {},
	"channel":     {},
	"category":    {},
	"status":      {},
	"operation":   {},
	"method":      {},
	"route":       {},
	"status_code": {},
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
