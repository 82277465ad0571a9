// Package telemetry настраивает OpenTelemetry: трассировку с экспортом
// по OTLP и метрики рантайма через Prometheus-экспортер.
package telemetry

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultOTLPEndpoint — адрес коллектора по умолчанию.
const DefaultOTLPEndpoint = "localhost:4317"

// Config — параметры телеметрии.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Enabled=false оставляет no-op трассировку, но пропагатор ставится всегда,
	// чтобы контекст проходил через Kafka-заголовки.
	Enabled      bool
	OTLPEndpoint string
	// Registerer для метрик рантайма; nil — prometheus.DefaultRegisterer.
	Registerer promclient.Registerer
}

// Shutdown сбрасывает буферы экспортеров.
type Shutdown func(context.Context) error

func (c Config) resource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
	)
}

// InitTracerProvider регистрирует глобальный TracerProvider.
func InitTracerProvider(ctx context.Context, cfg Config) (Shutdown, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = DefaultOTLPEndpoint
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(cfg.resource()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// InitMeterProvider регистрирует глобальный MeterProvider с Prometheus-экспортером
// и запускает сбор метрик рантайма Go. Метрики отдаются тем же /metrics,
// что и метрики client_golang.
func InitMeterProvider(cfg Config) (Shutdown, error) {
	var options []prometheus.Option
	if cfg.Registerer != nil {
		options = append(options, prometheus.WithRegisterer(cfg.Registerer))
	}
	exporter, err := prometheus.New(options...)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(cfg.resource()),
	)
	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, fmt.Errorf("start runtime metrics: %w", err)
	}
	return mp.Shutdown, nil
}
