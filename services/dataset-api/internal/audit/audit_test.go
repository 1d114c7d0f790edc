package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/dataset-api/common/backoff"
	producer "github.com/YaganovValera/dataset-api/common/kafka/producer"
	"github.com/YaganovValera/dataset-api/common/logger"
)

func TestPublisher_PublishesAndDrains(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, nil)
	var got Event
	mockProd.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "audit-test" {
			t.Errorf("topic = %q", msg.Topic)
		}
		b, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		return json.Unmarshal(b, &got)
	})

	prod := producer.NewFromSyncProducer(mockProd, backoff.Config{MaxElapsedTime: time.Second}, logger.NewNop())
	p := NewPublisher(prod, Config{Topic: "audit-test"}, logger.NewNop())

	p.Record(Event{RequestID: "r1", SQL: "SELECT 1", Rows: 1, Outcome: "ok"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Run сразу уходит в drain и дописывает буфер.
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.RequestID != "r1" || got.SQL != "SELECT 1" || got.Outcome != "ok" {
		t.Errorf("published event = %+v", got)
	}
	_ = prod.Close()
}

func TestPublisher_DropsWhenFull(t *testing.T) {
	p := NewPublisher(nil, Config{BufferSize: 1}, logger.NewNop())
	p.Record(Event{RequestID: "a"})
	p.Record(Event{RequestID: "b"})
	if len(p.queue) != 1 {
		t.Errorf("queue len = %d; want 1", len(p.queue))
	}
	if ev := <-p.queue; ev.RequestID != "a" {
		t.Errorf("kept %q; want the first event", ev.RequestID)
	}
}

func TestConfig(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled audit must validate: %v", err)
	}
	cfg.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("enabled audit without brokers must fail")
	}
	cfg.Kafka.Brokers = []string{"kafka:9092"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
