// common/telemetry/otel_test.go
package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/YaganovValera/dataset-api/common/logger"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		expectsErr bool
	}{
		{"disabled skips checks", Config{}, false},
		{"missing endpoint", Config{Enabled: true, ServiceName: "svc", ServiceVersion: "v1"}, true},
		{"missing serviceName", Config{Enabled: true, Endpoint: "host:1234", ServiceVersion: "v1"}, true},
		{"missing version", Config{Enabled: true, Endpoint: "host:1234", ServiceName: "svc"}, true},
		{"all set", Config{Enabled: true, Endpoint: "host:1234", ServiceName: "svc", ServiceVersion: "v1"}, false},
	}
	for _, tc := range tests {
		err := tc.cfg.Validate()
		if tc.expectsErr && err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
		if !tc.expectsErr && err != nil {
			t.Errorf("%s: expected no error, got %v", tc.name, err)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{SamplerRatio: 7}
	cfg.ApplyDefaults()
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected default Timeout=5s, got %v", cfg.Timeout)
	}
	if cfg.ReconnectPeriod != 5*time.Second {
		t.Errorf("expected default ReconnectPeriod=5s, got %v", cfg.ReconnectPeriod)
	}
	if cfg.SamplerRatio != 1.0 {
		t.Errorf("expected SamplerRatio=1.0, got %v", cfg.SamplerRatio)
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{}, logger.NewNop())
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown returned %v", err)
	}
}

// Экспортёр gRPC подключается лениво, поэтому Init проходит без коллектора.
func TestInitTracer_Enabled(t *testing.T) {
	cfg := Config{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "testsvc",
		ServiceVersion: "v0.1",
		Insecure:       true,
		Timeout:        200 * time.Millisecond,
	}
	shutdown, err := InitTracer(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	_ = shutdown(context.Background())
}
