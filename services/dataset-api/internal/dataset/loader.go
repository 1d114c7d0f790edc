// services/dataset-api/internal/dataset/loader.go
//
// Пакет dataset загружает единственный файл датасета в таблицу движка.
// Вызывается один раз при старте; любая ошибка фатальна для процесса.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/backoff"
	"github.com/YaganovValera/dataset-api/common/logger"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/engine"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/metrics"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/template"
)

// ErrEmpty — таблица создана, но в ней нет строк.
var ErrEmpty = errors.New("dataset is empty")

// Engine — то, что загрузчику нужно от движка.
type Engine interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (*engine.Result, error)
}

// Loader создаёт таблицу из файла.
type Loader struct {
	cfg Config
	eng Engine
	s3  fetcher
	log *logger.Logger
}

// NewLoader проверяет конфиг и, для s3://, создаёт клиента MinIO.
func NewLoader(cfg Config, eng Engine, log *logger.Logger) (*Loader, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loader{cfg: cfg, eng: eng, log: log.Named("dataset")}
	if cfg.S3.Endpoint != "" {
		mc, err := newS3Client(cfg.S3)
		if err != nil {
			return nil, err
		}
		l.s3 = mc
	}
	return l, nil
}

// Load создаёт таблицу и возвращает число строк в ней.
func (l *Loader) Load(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer("dataset-api/dataset").Start(ctx, "Load",
		trace.WithAttributes(
			attribute.String("dataset.source", l.cfg.Source),
			attribute.String("dataset.table", l.cfg.Table),
		),
	)
	defer span.End()

	rows, err := l.load(ctx)
	if err != nil {
		span.RecordError(err)
		l.log.Error("dataset: load failed", zap.String("source", l.cfg.Source), zap.Error(err))
		return 0, err
	}
	metrics.Register(nil)
	metrics.DatasetRows.Set(float64(rows))
	l.log.Info("dataset: loaded",
		zap.String("source", l.cfg.Source),
		zap.String("table", l.cfg.Table),
		zap.Int64("rows", rows),
	)
	return rows, nil
}

func (l *Loader) load(ctx context.Context) (int64, error) {
	if l.s3 == nil && strings.HasPrefix(l.cfg.Source, s3Scheme) {
		return 0, fmt.Errorf("dataset: s3 source without s3 client")
	}
	file, cleanup, err := resolve(ctx, l.cfg, l.s3, l.log)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	format, err := detectFormat(l.cfg.Format, file)
	if err != nil {
		return 0, err
	}
	stmt := createStatement(l.cfg.Table, format, file)

	err = backoff.Execute(ctx, l.cfg.Backoff, l.log, "dataset-load", func(ctx context.Context) error {
		err := l.eng.Exec(ctx, stmt)
		if err != nil && !engine.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("dataset: create table %q: %w", l.cfg.Table, err)
	}

	res, err := l.eng.Query(ctx, "SELECT count(*) AS n FROM "+template.QuoteIdent(l.cfg.Table))
	if err != nil {
		return 0, fmt.Errorf("dataset: count rows: %w", err)
	}
	var n int64
	if len(res.Rows) == 1 {
		v, _ := res.Rows[0].Get("n")
		n, _ = v.(int64)
	}
	if n <= 0 {
		return 0, fmt.Errorf("dataset: table %q: %w", l.cfg.Table, ErrEmpty)
	}
	return n, nil
}

// createStatement — CREATE TABLE "<table>" AS SELECT * FROM read_xxx('<file>').
func createStatement(table, format, file string) string {
	reader := map[string]string{
		FormatParquet: "read_parquet",
		FormatCSV:     "read_csv_auto",
		FormatJSON:    "read_json_auto",
	}[format]
	return fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s(%s)",
		template.QuoteIdent(table), reader, template.QuoteString(file))
}
