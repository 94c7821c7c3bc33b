package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/leadflow/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	CollectorAddr  string
	MetricInterval time.Duration // default 15s
	SampleRatio    float64       // default 1.0
}

// FromConfig builds a telemetry config from the application settings
func FromConfig(app config.AppConfig, otelCfg config.OTelConfig) *Config {
	return &Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: app.Version,
		Environment:    app.Environment,
		CollectorAddr:  otelCfg.CollectorAddr,
	}
}

// Telemetry holds the providers plus the tracer and meter handed to callers
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
}

var global *Telemetry

// Init installs global providers. When disabled the otel no-op providers are used.
func Init(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if cfg == nil || !cfg.Enabled {
		name := "leadflow"
		if cfg != nil && cfg.ServiceName != "" {
			name = cfg.ServiceName
		}
		global = &Telemetry{tracer: otel.Tracer(name), meter: otel.Meter(name)}
		return global, nil
	}

	if cfg.MetricInterval == 0 {
		cfg.MetricInterval = 15 * time.Second
	}
	if cfg.SampleRatio == 0 {
		cfg.SampleRatio = 1.0
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentNameKey.String(cfg.Environment),
		attribute.String("service.namespace", "leadflow"),
	)

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.CollectorAddr),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.CollectorAddr),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricInterval))),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global = &Telemetry{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer(cfg.ServiceName),
		meter:          mp.Meter(cfg.ServiceName),
	}
	return global, nil
}

// Shutdown flushes and stops both providers
func Shutdown(ctx context.Context) error {
	if global == nil {
		return nil
	}
	var errs []error
	if global.tracerProvider != nil {
		if err := global.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if global.meterProvider != nil {
		if err := global.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetMeter returns the global meter instance
func GetMeter() metric.Meter {
	if global == nil || global.meter == nil {
		return otel.Meter("leadflow")
	}
	return global.meter
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if global == nil || global.tracer == nil {
		return otel.Tracer("leadflow").Start(ctx, name, opts...)
	}
	return global.tracer.Start(ctx, name, opts...)
}

// RecordError marks the span as failed
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceID returns the trace ID from context
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Attribute helpers for the lead domain

func TenantAttr(tenantID string) attribute.KeyValue { return attribute.String("tenant.id", tenantID) }
func LeadAttr(leadID string) attribute.KeyValue     { return attribute.String("lead.id", leadID) }
func StatusAttr(status string) attribute.KeyValue   { return attribute.String("lead.status", status) }
func PeriodAttr(period string) attribute.KeyValue   { return attribute.String("analytics.period", period) }
func RoleAttr(role string) attribute.KeyValue       { return attribute.String("auth.role", role) }
