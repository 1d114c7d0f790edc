// services/dataset-api/internal/dataset/config.go
package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/YaganovValera/dataset-api/common/backoff"
)

// Поддерживаемые форматы файла.
const (
	FormatAuto    = "auto"
	FormatParquet = "parquet"
	FormatCSV     = "csv"
	FormatJSON    = "json"
)

// Config описывает источник датасета и таблицу, в которую он грузится.
type Config struct {
	// Source — локальный путь или s3://bucket/key.
	Source string `mapstructure:"source"`
	// Format — parquet | csv | json | auto (по расширению).
	Format string `mapstructure:"format"`
	// Table — имя таблицы в движке.
	Table string `mapstructure:"table"`
	// S3 используется только для источников s3://.
	S3 S3Config `mapstructure:"s3"`
	// Backoff — повторы при временных ошибках ввода-вывода.
	Backoff backoff.Config `mapstructure:"backoff"`
}

// S3Config — подключение к S3-совместимому хранилищу (MinIO, AWS).
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ApplyDefaults заполняет нулевые значения.
func (c *Config) ApplyDefaults() {
	if c.Source == "" {
		c.Source = "YouthRisk2007.pq"
	}
	if c.Format == "" {
		c.Format = FormatAuto
	}
	if c.Table == "" {
		c.Table = "dataset"
	}
	if c.Backoff.MaxElapsedTime <= 0 {
		c.Backoff.MaxElapsedTime = 30 * time.Second
	}
}

// Validate проверяет конфиг.
func (c Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("dataset: source is required")
	}
	if c.Table == "" {
		return fmt.Errorf("dataset: table is required")
	}
	switch strings.ToLower(c.Format) {
	case FormatAuto, FormatParquet, FormatCSV, FormatJSON:
	default:
		return fmt.Errorf("dataset: unknown format %q", c.Format)
	}
	if strings.HasPrefix(c.Source, s3Scheme) {
		if _, _, err := parseS3(c.Source); err != nil {
			return err
		}
		if c.S3.Endpoint == "" {
			return fmt.Errorf("dataset: s3.endpoint is required for %s sources", s3Scheme)
		}
	}
	if err := c.Backoff.Validate(); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	return nil
}
