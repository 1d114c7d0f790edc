// common/kafka/producer/producer_test.go
package producer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/dataset-api/common/backoff"
	"github.com/YaganovValera/dataset-api/common/logger"
)

// Проверяем ApplyDefaults и Validate.
func TestConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name     string
		input    Config
		wantErr  bool
		wantAcks string
		wantComp string
	}{
		{"empty", Config{}, true, "all", "none"},
		{"noBrokers", Config{Compression: "gzip"}, true, "all", "gzip"},
		{"ok", Config{Brokers: []string{"b1"}}, false, "all", "none"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.ApplyDefaults()
			if got := cfg.RequiredAcks; got != c.wantAcks {
				t.Errorf("RequiredAcks = %q; want %q", got, c.wantAcks)
			}
			if got := cfg.Compression; got != c.wantComp {
				t.Errorf("Compression = %q; want %q", got, c.wantComp)
			}
			if cfg.Version != "2.8.0" {
				t.Errorf("Version = %q; want 2.8.0", cfg.Version)
			}
			err := cfg.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("Validate() error = %v; wantErr=%v", err, c.wantErr)
			}
		})
	}
}

// Проверяем buildSaramaConfig для acks и идемпотентности.
func TestBuildSaramaConfig_RequiredAcks(t *testing.T) {
	cases := []struct {
		acks       string
		want       sarama.RequiredAcks
		idempotent bool
		wantErr    bool
	}{
		{"all", sarama.WaitForAll, true, false},
		{"LeAdEr", sarama.WaitForLocal, false, false},
		{"none", sarama.NoResponse, false, false},
		{"invalid", 0, false, true},
	}
	for _, c := range cases {
		t.Run(c.acks, func(t *testing.T) {
			cfg := Config{RequiredAcks: c.acks, Compression: "none", Version: "2.8.0", Brokers: []string{"x"}}
			sc, err := buildSaramaConfig(cfg)
			if c.wantErr {
				if err == nil {
					t.Errorf("buildSaramaConfig(%q) expected error", c.acks)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sc.Producer.RequiredAcks != c.want {
				t.Errorf("got %v; want %v", sc.Producer.RequiredAcks, c.want)
			}
			if sc.Producer.Idempotent != c.idempotent {
				t.Errorf("Idempotent = %v; want %v", sc.Producer.Idempotent, c.idempotent)
			}
		})
	}
}

func TestBuildSaramaConfig_CompressionAndVersion(t *testing.T) {
	for _, comp := range []string{"none", "gzip", "snappy", "lz4", "zstd", "NONE"} {
		cfg := Config{RequiredAcks: "all", Compression: comp, Version: "2.8.0"}
		if _, err := buildSaramaConfig(cfg); err != nil {
			t.Errorf("compression %q: unexpected error %v", comp, err)
		}
	}
	if _, err := buildSaramaConfig(Config{RequiredAcks: "all", Compression: "bogus", Version: "2.8.0"}); err == nil {
		t.Error("expected error for bogus compression")
	}
	_, err := buildSaramaConfig(Config{RequiredAcks: "all", Compression: "none", Version: "not-a-version"})
	if err == nil || !strings.Contains(err.Error(), "Version") {
		t.Errorf("expected version error, got %v", err)
	}
}

// Publish: сначала брокер отвечает ошибкой, потом — успех.
func TestPublish_RetryAndSuccess(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	mockProd.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mockProd.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "value" {
			t.Errorf("value = %q", val)
		}
		return nil
	})

	p := NewFromSyncProducer(mockProd, backoff.Config{
		InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxElapsedTime: time.Second,
	}, logger.NewNop())

	if err := p.Publish(context.Background(), "topic", []byte("key"), []byte("value")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping without client should be nil, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPublish_GivesUp(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	for i := 0; i < 100; i++ {
		mockProd.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	}
	p := NewFromSyncProducer(mockProd, backoff.Config{
		InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxElapsedTime: 20 * time.Millisecond,
	}, logger.NewNop())

	if err := p.Publish(context.Background(), "topic", nil, []byte("v")); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}, logger.NewNop()); err == nil {
		t.Fatal("expected error for empty Config, got nil")
	}
	cfg := Config{Brokers: []string{"dummy"}, RequiredAcks: "invalid"}
	if _, err := New(context.Background(), cfg, logger.NewNop()); err == nil {
		t.Fatal("expected error for invalid RequiredAcks, got nil")
	}
}
