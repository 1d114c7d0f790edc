// common/httpserver/config.go

package httpserver

import (
	"fmt"
	"strings"
	"time"
)

// Config определяет настройки HTTP-сервера.
type Config struct {
	Addr            string        `mapstructure:"addr"`             // адрес для Listen, например ":8000"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`     // максимальное время чтения запроса
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`    // максимальное время записи ответа
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`     // максимальное время простоя соединения
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // таймаут для graceful shutdown
	MetricsPath     string        `mapstructure:"metrics_path"`     // путь для /metrics
	HealthzPath     string        `mapstructure:"healthz_path"`     // путь для /healthz
	ReadyzPath      string        `mapstructure:"readyz_path"`      // путь для /readyz
}

// ApplyDefaults заполняет нулевые значения.
func (c *Config) ApplyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.HealthzPath == "" {
		c.HealthzPath = "/healthz"
	}
	if c.ReadyzPath == "" {
		c.ReadyzPath = "/readyz"
	}
}

// Validate проверяет обязательные поля.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("httpserver: Addr is required")
	}
	for key, path := range map[string]string{
		"metrics_path": c.MetricsPath,
		"healthz_path": c.HealthzPath,
		"readyz_path":  c.ReadyzPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("httpserver: %s must start with '/'", key)
		}
	}
	return nil
}
