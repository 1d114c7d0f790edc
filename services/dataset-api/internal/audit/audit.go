// services/dataset-api/internal/audit/audit.go
//
// Пакет audit отправляет события об исполненных запросах в Kafka.
// Публикация асинхронная: Record кладёт событие в буфер, Run разгребает его.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/kafka"
	producer "github.com/YaganovValera/dataset-api/common/kafka/producer"
	"github.com/YaganovValera/dataset-api/common/logger"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/metrics"
)

// Config — настройки аудита.
type Config struct {
	Enabled    bool            `mapstructure:"enabled"`
	Topic      string          `mapstructure:"topic"`
	BufferSize int             `mapstructure:"buffer_size"`
	Kafka      producer.Config `mapstructure:"kafka"`
}

// ApplyDefaults заполняет нулевые значения.
func (c *Config) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "dataset-api.query-audit"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	c.Kafka.ApplyDefaults()
}

// Validate проверяет конфиг только для включённого аудита.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Topic == "" {
		return fmt.Errorf("audit: topic is required")
	}
	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// Event — запись об одном вызове /query.
type Event struct {
	RequestID  string    `json:"request_id,omitempty"`
	Time       time.Time `json:"time"`
	SQL        string    `json:"sql"`
	Params     []string  `json:"params,omitempty"`
	Columns    int       `json:"columns"`
	Rows       int       `json:"rows"`
	DurationMS float64   `json:"duration_ms"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

// Recorder принимает события аудита.
type Recorder interface {
	Record(ev Event)
}

// Nop — аудит выключен.
type Nop struct{}

func (Nop) Record(Event) {}

// -----------------------------------------------------------------------------
// Kafka publisher
// -----------------------------------------------------------------------------

// Publisher пишет события в топик Kafka.
type Publisher struct {
	prod  kafka.Producer
	topic string
	queue chan Event
	log   *logger.Logger
}

// NewPublisher создаёт издателя поверх готового продюсера.
func NewPublisher(prod kafka.Producer, cfg Config, log *logger.Logger) *Publisher {
	cfg.ApplyDefaults()
	metrics.Register(nil)
	return &Publisher{
		prod:  prod,
		topic: cfg.Topic,
		queue: make(chan Event, cfg.BufferSize),
		log:   log.Named("audit"),
	}
}

// Record ставит событие в очередь; при переполненном буфере событие теряется.
func (p *Publisher) Record(ev Event) {
	select {
	case p.queue <- ev:
	default:
		metrics.AuditDropped.Inc()
		p.log.Warn("audit: buffer full, event dropped", zap.String("request_id", ev.RequestID))
	}
}

// Run публикует события до отмены ctx, затем дописывает остаток буфера.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-p.queue:
			p.publish(ctx, ev)
		case <-ctx.Done():
			p.drain()
			return nil
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.queue:
			p.publish(ctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		metrics.AuditDropped.Inc()
		p.log.Error("audit: marshal failed", zap.Error(err))
		return
	}
	if err := p.prod.Publish(ctx, p.topic, []byte(ev.RequestID), value); err != nil {
		metrics.AuditDropped.Inc()
		p.log.Warn("audit: publish failed", zap.String("request_id", ev.RequestID), zap.Error(err))
		return
	}
	metrics.AuditPublished.Inc()
}
