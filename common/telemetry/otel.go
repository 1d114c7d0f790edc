// common/telemetry/otel.go
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/logger"
)

// Config содержит параметры для инициализации OpenTelemetry.
type Config struct {
	Enabled         bool          `mapstructure:"enabled"`          // false → no-op провайдер
	Endpoint        string        `mapstructure:"endpoint"`         // OTLP-collector "host:port"
	ServiceName     string        `mapstructure:"service_name"`     // имя сервиса
	ServiceVersion  string        `mapstructure:"service_version"`  // версия сборки
	Insecure        bool          `mapstructure:"insecure"`         // true → gRPC без TLS
	ReconnectPeriod time.Duration `mapstructure:"reconnect_period"` // период переподключения экспортёра
	Timeout         time.Duration `mapstructure:"timeout"`          // таймаут Init/Shutdown
	SamplerRatio    float64       `mapstructure:"sampler_ratio"`    // 0.0…1.0 — доля выборки span'ов
}

// ApplyDefaults заполняет нулевые значения.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.ReconnectPeriod <= 0 {
		c.ReconnectPeriod = 5 * time.Second
	}
	if c.SamplerRatio <= 0 || c.SamplerRatio > 1 {
		c.SamplerRatio = 1
	}
}

// Validate проверяет конфиг только для включённой телеметрии.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("telemetry: endpoint is required")
	case c.ServiceName == "":
		return fmt.Errorf("telemetry: service name is required")
	case c.ServiceVersion == "":
		return fmt.Errorf("telemetry: service version is required")
	case c.SamplerRatio < 0 || c.SamplerRatio > 1:
		return fmt.Errorf("telemetry: sampler ratio must be between 0.0 and 1.0, got %v", c.SamplerRatio)
	default:
		return nil
	}
}

// InitTracer инициализирует глобальный TracerProvider и возвращает Shutdown-функцию.
// При выключенной телеметрии глобальный провайдер остаётся no-op.
func InitTracer(ctx context.Context, cfg Config, log *logger.Logger) (func(context.Context) error, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		log.Info("telemetry: disabled")
		return func(context.Context) error { return nil }, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	exp, err := newExporter(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp := newTracerProvider(exp, res, cfg)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("telemetry: initialized",
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.ServiceVersion),
		zap.String("endpoint", cfg.Endpoint),
	)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown: %w", err)
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithReconnectionPeriod(cfg.ReconnectPeriod),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func newResource(cfg Config) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
}

func newTracerProvider(exp sdktrace.SpanExporter, res *resource.Resource, cfg Config) *sdktrace.TracerProvider {
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplerRatio))
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
}
