// common/kafka/producer/producer.go
package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/backoff"
	commonkafka "github.com/YaganovValera/dataset-api/common/kafka"
	"github.com/YaganovValera/dataset-api/common/logger"
)

// -----------------------------------------------------------------------------
// Service label (заполняется через common.InitServiceName)
// -----------------------------------------------------------------------------

var serviceLabel = "unknown"

// SetServiceLabel вызывается из common.InitServiceName(..) один раз при старте.
func SetServiceLabel(name string) { serviceLabel = name }

// -----------------------------------------------------------------------------
// Prometheus-метрики
// -----------------------------------------------------------------------------

var producerMetrics = struct {
	ConnectAttempts *prometheus.CounterVec
	ConnectErrors   *prometheus.CounterVec
	PublishSuccess  *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec
	PublishLatency  *prometheus.HistogramVec
}{
	ConnectAttempts: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "connect_attempts_total",
			Help: "Kafka producer connect attempts",
		},
		[]string{"service"},
	),
	ConnectErrors: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "connect_errors_total",
			Help: "Kafka producer connect errors",
		},
		[]string{"service"},
	),
	PublishSuccess: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "publish_success_total",
			Help: "Successful publishes",
		},
		[]string{"service", "topic"},
	),
	PublishErrors: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "publish_errors_total",
			Help: "Publish errors",
		},
		[]string{"service", "topic"},
	),
	PublishLatency: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "common", Subsystem: "kafka_producer", Name: "publish_latency_seconds",
			Help:    "Publish latency (seconds)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	),
}

var tracer = otel.Tracer("kafka-producer")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config groups all tunables for a Kafka Sync-producer.
//
// Zero values are replaced with sane defaults by ApplyDefaults().
type Config struct {
	// Brokers — список адресов Kafka-брокеров.
	Brokers []string `mapstructure:"brokers"`

	// ClientID попадает в метаданные запросов к брокеру.
	ClientID string `mapstructure:"client_id"`

	// Version — версия протокола Kafka, например "2.8.0".
	Version string `mapstructure:"version"`

	// RequiredAcks: "all" (дефолт) | "leader" | "none".
	RequiredAcks string `mapstructure:"required_acks"`

	// Timeout — максимальное время ожидания ack от кластера.
	Timeout time.Duration `mapstructure:"timeout"`

	// Compression: "none" (дефолт), "gzip", "snappy", "lz4", "zstd".
	Compression string `mapstructure:"compression"`

	// Backoff описывает стратегию ретраев подключения и отправки.
	Backoff backoff.Config `mapstructure:"backoff"`
}

// ApplyDefaults заполняет zero-поля безопасными дефолтами.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
}

// Validate выполняет быстрые sanity-checks.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers required")
	}
	if err := c.Backoff.Validate(); err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	return nil
}

func buildSaramaConfig(c Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: invalid Version %q: %w", c.Version, err)
	}
	sc.Version = version
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}

	switch strings.ToLower(c.RequiredAcks) {
	case "all":
		sc.Producer.RequiredAcks = sarama.WaitForAll
		// идемпотентность допустима только при acks=all
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1
	case "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("kafka producer: invalid RequiredAcks %q", c.RequiredAcks)
	}

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = c.Timeout

	switch strings.ToLower(c.Compression) {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("kafka producer: invalid Compression %q", c.Compression)
	}

	return sc, nil
}

// -----------------------------------------------------------------------------
// Producer implementation
// -----------------------------------------------------------------------------

type kafkaProducer struct {
	prod       sarama.SyncProducer
	client     sarama.Client // nil, если продьюсер создан поверх готового SyncProducer
	logger     *logger.Logger
	backoffCfg backoff.Config
}

// New создает SyncProducer c ретраями подключения.
func New(ctx context.Context, cfg Config, log *logger.Logger) (commonkafka.Producer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-producer")

	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	var (
		client   sarama.Client
		syncProd sarama.SyncProducer
	)
	connect := func(ctx context.Context) error {
		producerMetrics.ConnectAttempts.WithLabelValues(serviceLabel).Inc()
		c, err := sarama.NewClient(cfg.Brokers, sc)
		if err != nil {
			producerMetrics.ConnectErrors.WithLabelValues(serviceLabel).Inc()
			return err
		}
		p, err := sarama.NewSyncProducerFromClient(c)
		if err != nil {
			producerMetrics.ConnectErrors.WithLabelValues(serviceLabel).Inc()
			_ = c.Close()
			return err
		}
		client, syncProd = c, p
		return nil
	}

	ctxConn, span := tracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers)))
	defer span.End()
	if err := backoff.Execute(ctxConn, cfg.Backoff, log, "kafka-connect", connect); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("kafka producer: connect: %w", err)
	}

	log.Info("kafka producer ready", zap.Strings("brokers", cfg.Brokers))
	return &kafkaProducer{
		prod:       otelsarama.WrapSyncProducer(sc, syncProd),
		client:     client,
		logger:     log,
		backoffCfg: cfg.Backoff,
	}, nil
}

// NewFromSyncProducer оборачивает уже созданный SyncProducer (например, mocks.SyncProducer).
func NewFromSyncProducer(prod sarama.SyncProducer, backoffCfg backoff.Config, log *logger.Logger) commonkafka.Producer {
	return &kafkaProducer{prod: prod, logger: log.Named("kafka-producer"), backoffCfg: backoffCfg}
}

// Publish отправляет сообщение в Kafka c ретраями.
func (k *kafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	ctxPub, span := tracer.Start(ctx, "Publish", trace.WithAttributes(attribute.String("topic", topic)))
	defer span.End()
	start := time.Now()

	send := func(ctx context.Context) error {
		msg := &sarama.ProducerMessage{
			Topic: topic,
			Value: sarama.ByteEncoder(value),
		}
		if key != nil {
			msg.Key = sarama.ByteEncoder(key)
		}
		_, _, err := k.prod.SendMessage(msg)
		return err
	}

	err := backoff.Execute(ctxPub, k.backoffCfg, k.logger, "kafka-publish", send)
	producerMetrics.PublishLatency.WithLabelValues(serviceLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		producerMetrics.PublishErrors.WithLabelValues(serviceLabel, topic).Inc()
		span.RecordError(err)
		k.logger.WithContext(ctx).Error("publish failed", zap.String("topic", topic), zap.Error(err))
		return err
	}

	producerMetrics.PublishSuccess.WithLabelValues(serviceLabel, topic).Inc()
	k.logger.WithContext(ctx).Debug("publish succeeded", zap.String("topic", topic))
	return nil
}

// Ping обновляет метаданные клиента, проверяя доступность кластера.
func (k *kafkaProducer) Ping(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Ping")
	defer span.End()
	if k.client == nil {
		return nil
	}
	if err := k.client.RefreshMetadata(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("kafka producer: ping: %w", err)
	}
	return nil
}

// Close корректно закрывает продьюсер и клиент.
func (k *kafkaProducer) Close() error {
	var errs []error
	if err := k.prod.Close(); err != nil {
		errs = append(errs, fmt.Errorf("producer close: %w", err))
	}
	if k.client != nil && !k.client.Closed() {
		if err := k.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("client close: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		k.logger.Error("kafka producer close failed", zap.Error(err))
		return err
	}
	k.logger.Info("kafka producer closed")
	return nil
}
