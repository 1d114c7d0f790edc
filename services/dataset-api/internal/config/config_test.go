package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/dataset"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8000" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.MaxBodyBytes != 1<<20 {
		t.Errorf("HTTP.MaxBodyBytes = %d", cfg.HTTP.MaxBodyBytes)
	}
	if cfg.Dataset.Source != "YouthRisk2007.pq" || cfg.Dataset.Table != "dataset" || cfg.Dataset.Format != dataset.FormatAuto {
		t.Errorf("Dataset = %+v", cfg.Dataset)
	}
	if cfg.Engine.QueryTimeout != 30*time.Second {
		t.Errorf("Engine.QueryTimeout = %v", cfg.Engine.QueryTimeout)
	}
	if cfg.Query.MaxParams != 64 {
		t.Errorf("Query.MaxParams = %d", cfg.Query.MaxParams)
	}
	if cfg.Audit.Enabled || cfg.Telemetry.Enabled || cfg.RateLimit.Enabled() {
		t.Error("optional subsystems must be off by default")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DATASET_API_HTTP_ADDR", ":9100")
	t.Setenv("DATASET_API_ENGINE_MAX_ROWS", "500")
	t.Setenv("DATASET_API_DATASET_SOURCE", "/data/other.csv")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Engine.MaxRows != 500 {
		t.Errorf("Engine.MaxRows = %d", cfg.Engine.MaxRows)
	}
	if cfg.Dataset.Source != "/data/other.csv" {
		t.Errorf("Dataset.Source = %q", cfg.Dataset.Source)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
http:
  addr: ":8080"
  max_body_bytes: 4096
engine:
  query_timeout: 5s
dataset:
  table: youth
rate_limit:
  requests_per_second: 10
  burst: 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.MaxBodyBytes != 4096 {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Engine.QueryTimeout != 5*time.Second {
		t.Errorf("Engine.QueryTimeout = %v", cfg.Engine.QueryTimeout)
	}
	if cfg.Dataset.Table != "youth" {
		t.Errorf("Dataset.Table = %q", cfg.Dataset.Table)
	}
	if !cfg.RateLimit.Enabled() || cfg.RateLimit.Burst != 5 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	// незаданные в файле ключи берутся из defaults
	if cfg.Query.MaxParams != 64 {
		t.Errorf("Query.MaxParams = %d", cfg.Query.MaxParams)
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown dataset format", map[string]string{"DATASET_API_DATASET_FORMAT": "xlsx"}},
		{"bad log level", map[string]string{"DATASET_API_LOGGING_LEVEL": "loud"}},
		{"negative max params", map[string]string{"DATASET_API_QUERY_MAX_PARAMS": "-1"}},
		{"s3 without endpoint", map[string]string{"DATASET_API_DATASET_SOURCE": "s3://bucket/key.pq"}},
		{"audit without brokers", map[string]string{"DATASET_API_AUDIT_ENABLED": "true"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPrint_MasksSecret(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Dataset.S3.SecretKey = "super-secret"

	var buf bytes.Buffer
	cfg.Print(&buf)
	out := buf.String()
	if strings.Contains(out, "super-secret") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "***") {
		t.Errorf("mask missing: %s", out)
	}
	if cfg.Dataset.S3.SecretKey != "super-secret" {
		t.Error("Print must not modify the config")
	}
}
