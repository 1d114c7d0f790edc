// services/dataset-api/internal/engine/config.go
package engine

import (
	"fmt"
	"time"
)

// Config описывает встроенный DuckDB и пул исполнителей запросов.
type Config struct {
	// MaxOpenConns — размер пула database/sql поверх одной in-memory базы.
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// MaxConcurrentQueries — число воркеров ants; остальные запросы ждут.
	MaxConcurrentQueries int `mapstructure:"max_concurrent_queries"`
	// QueryTimeout ограничивает исполнение одного запроса.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	// MaxRows — предел строк в ответе, 0 — без ограничения.
	MaxRows int `mapstructure:"max_rows"`
	// Threads и MemoryLimit передаются в DuckDB как есть; пустые — значения движка.
	Threads     int    `mapstructure:"threads"`
	MemoryLimit string `mapstructure:"memory_limit"`
}

// ApplyDefaults заполняет нулевые значения.
func (c *Config) ApplyDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxConcurrentQueries <= 0 {
		c.MaxConcurrentQueries = c.MaxOpenConns
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 30 * time.Second
	}
}

// Validate проверяет конфиг.
func (c Config) Validate() error {
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("engine: max_open_conns must be >0")
	}
	if c.MaxConcurrentQueries <= 0 {
		return fmt.Errorf("engine: max_concurrent_queries must be >0")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("engine: query_timeout must be >0")
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("engine: max_rows must be >=0")
	}
	if c.Threads < 0 {
		return fmt.Errorf("engine: threads must be >=0")
	}
	return nil
}
