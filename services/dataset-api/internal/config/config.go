// services/dataset-api/internal/config/config.go
package config

import (
	"fmt"
	"io"

	"github.com/YaganovValera/dataset-api/common/configloader"
	"github.com/YaganovValera/dataset-api/common/httpserver"
	"github.com/YaganovValera/dataset-api/common/logger"
	"github.com/YaganovValera/dataset-api/common/middleware"
	"github.com/YaganovValera/dataset-api/common/telemetry"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/audit"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/dataset"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/engine"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/usecase"
)

// EnvPrefix — префикс переменных окружения: DATASET_API_HTTP_ADDR и т.д.
const EnvPrefix = "DATASET_API"

// Config хранит все настройки сервиса dataset-api.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	Logging   logger.Config              `mapstructure:"logging"`
	HTTP      HTTPConfig                 `mapstructure:"http"`
	Telemetry telemetry.Config           `mapstructure:"telemetry"`
	Engine    engine.Config              `mapstructure:"engine"`
	Dataset   dataset.Config             `mapstructure:"dataset"`
	Query     usecase.Config             `mapstructure:"query"`
	Audit     audit.Config               `mapstructure:"audit"`
	RateLimit middleware.RateLimitConfig `mapstructure:"rate_limit"`
}

// HTTPConfig — настройки сервера плюс лимит тела запроса.
type HTTPConfig struct {
	httpserver.Config `mapstructure:",squash"`
	MaxBodyBytes      int64 `mapstructure:"max_body_bytes"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"service_name":    "dataset-api",
		"service_version": "v1.0.0",

		// Logging
		"logging.level":    "info",
		"logging.dev_mode": false,

		// HTTP
		"http.addr":             ":8000",
		"http.read_timeout":     "10s",
		"http.write_timeout":    "60s",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "5s",
		"http.metrics_path":     "/metrics",
		"http.healthz_path":     "/healthz",
		"http.readyz_path":      "/readyz",
		"http.max_body_bytes":   1 << 20,

		// Telemetry
		"telemetry.enabled":          false,
		"telemetry.endpoint":         "otel-collector:4317",
		"telemetry.service_name":     "dataset-api",
		"telemetry.service_version":  "v1.0.0",
		"telemetry.insecure":         true,
		"telemetry.reconnect_period": "5s",
		"telemetry.timeout":          "5s",
		"telemetry.sampler_ratio":    1.0,

		// Engine
		"engine.max_open_conns":         8,
		"engine.max_concurrent_queries": 8,
		"engine.query_timeout":          "30s",
		"engine.max_rows":               0,
		"engine.threads":                0,
		"engine.memory_limit":           "",

		// Dataset
		"dataset.source":                   "YouthRisk2007.pq",
		"dataset.format":                   dataset.FormatAuto,
		"dataset.table":                    "dataset",
		"dataset.s3.endpoint":              "",
		"dataset.s3.access_key":            "",
		"dataset.s3.secret_key":            "",
		"dataset.s3.region":                "",
		"dataset.s3.use_ssl":               false,
		"dataset.backoff.initial_interval": "500ms",
		"dataset.backoff.max_interval":     "5s",
		"dataset.backoff.max_elapsed_time": "30s",

		// Query
		"query.max_params": 64,

		// Audit
		"audit.enabled":                        false,
		"audit.topic":                          "dataset-api.query-audit",
		"audit.buffer_size":                    1024,
		"audit.kafka.brokers":                  "",
		"audit.kafka.client_id":                "dataset-api",
		"audit.kafka.version":                  "2.8.0",
		"audit.kafka.required_acks":            "all",
		"audit.kafka.timeout":                  "15s",
		"audit.kafka.compression":              "none",
		"audit.kafka.backoff.max_elapsed_time": "10s",

		// Rate limit
		"rate_limit.requests_per_second": 0,
		"rate_limit.burst":               20,
		"rate_limit.idle_ttl":            "10m",
	}
}

// Load читает конфиг: defaults -> ENV (DATASET_API_*) -> YAML по path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := configloader.Load(configloader.Options{
		Path:      path,
		EnvPrefix: EnvPrefix,
		Out:       &cfg,
		Defaults:  defaults(),
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate проверяет все секции.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >=0")
	}
	if c.Query.MaxParams <= 0 {
		return fmt.Errorf("query.max_params must be >0")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must be >=0")
	}

	for _, v := range []interface{ Validate() error }{
		c.Logging,
		c.HTTP.Config,
		c.Telemetry,
		c.Engine,
		c.Dataset,
		c.Audit,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Print выводит текущий конфиг в JSON (секреты скрыты).
func (c *Config) Print(w io.Writer) {
	cp := *c
	if cp.Dataset.S3.SecretKey != "" {
		cp.Dataset.S3.SecretKey = "***"
	}
	configloader.PrintConfig(w, cp)
}
