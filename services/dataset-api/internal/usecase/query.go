// services/dataset-api/internal/usecase/query.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/logger"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/audit"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/engine"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/metrics"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/template"
)

// Kind — происхождение ошибки запроса.
type Kind int

const (
	// KindClient — виноват входной запрос (HTTP 400).
	KindClient Kind = iota + 1
	// KindInternal — неисправность движка (HTTP 500).
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client_error"
	case KindInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// QueryError — классифицированная ошибка исполнения запроса.
type QueryError struct {
	Kind Kind
	Err  error
}

func (e *QueryError) Error() string { return e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

func clientErr(err error) error { return &QueryError{Kind: KindClient, Err: err} }

// Config — ограничения уровня запроса.
type Config struct {
	MaxParams int `mapstructure:"max_params"`
}

// ApplyDefaults заполняет нулевые значения.
func (c *Config) ApplyDefaults() {
	if c.MaxParams <= 0 {
		c.MaxParams = 64
	}
}

// QueryRequest — шаблон запроса и именованные значения.
type QueryRequest struct {
	Query  string
	Params map[string]any
}

// Engine — то, что use-case требует от движка.
type Engine interface {
	Query(ctx context.Context, query string, args ...any) (*engine.Result, error)
	Columns(ctx context.Context, table string) ([]string, error)
}

// Service исполняет запросы к таблице датасета.
type Service struct {
	eng   Engine
	table string
	cfg   Config
	audit audit.Recorder
	log   *logger.Logger
}

// New создаёт Service. rec может быть nil — тогда аудит выключен.
func New(eng Engine, table string, cfg Config, rec audit.Recorder, log *logger.Logger) *Service {
	cfg.ApplyDefaults()
	if rec == nil {
		rec = audit.Nop{}
	}
	metrics.Register(nil)
	return &Service{eng: eng, table: table, cfg: cfg, audit: rec, log: log.Named("usecase")}
}

// Execute компилирует шаблон, исполняет его и возвращает результат.
// Любая ошибка — *QueryError.
func (s *Service) Execute(ctx context.Context, req QueryRequest) (*engine.Result, error) {
	ctx, span := otel.Tracer("dataset-api/usecase").Start(ctx, "Query",
		trace.WithAttributes(attribute.Int("query.params", len(req.Params))),
	)
	defer span.End()
	start := time.Now()

	stmt, res, err := s.execute(ctx, req)

	outcome := "ok"
	var qe *QueryError
	if errors.As(err, &qe) {
		outcome = qe.Kind.String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	elapsed := time.Since(start)
	metrics.QueryRequests.WithLabelValues(outcome).Inc()
	metrics.QueryLatency.Observe(elapsed.Seconds())

	ev := audit.Event{
		RequestID:  logger.RequestIDFromContext(ctx),
		Time:       start.UTC(),
		SQL:        req.Query,
		DurationMS: float64(elapsed.Microseconds()) / 1000,
		Outcome:    outcome,
	}
	if stmt != nil {
		ev.SQL = stmt.Render()
		ev.Params = stmt.Params
	}

	log := s.log.WithContext(ctx)
	if err != nil {
		ev.Error = err.Error()
		s.audit.Record(ev)
		if qe != nil && qe.Kind == KindInternal {
			log.Error("query failed", zap.String("sql", ev.SQL), zap.Error(err))
		} else {
			log.Debug("query rejected", zap.String("sql", ev.SQL), zap.Error(err))
		}
		return nil, err
	}

	ev.Columns, ev.Rows = len(res.Columns), len(res.Rows)
	s.audit.Record(ev)
	metrics.QueryRows.Observe(float64(len(res.Rows)))
	log.Debug("query executed",
		zap.String("sql", ev.SQL),
		zap.Int("rows", len(res.Rows)),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (s *Service) execute(ctx context.Context, req QueryRequest) (*template.Statement, *engine.Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil, clientErr(errors.New("query must not be empty"))
	}
	if len(req.Params) > s.cfg.MaxParams {
		return nil, nil, clientErr(fmt.Errorf("too many params: %d, limit is %d", len(req.Params), s.cfg.MaxParams))
	}

	stmt, err := template.Compile(req.Query, req.Params)
	if err != nil {
		return nil, nil, clientErr(err)
	}

	res, err := s.eng.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		kind := KindClient
		if engine.IsInternal(err) {
			kind = KindInternal
		}
		return stmt, nil, &QueryError{Kind: kind, Err: err}
	}
	return stmt, res, nil
}

// Columns возвращает колонки таблицы датасета в порядке каталога.
func (s *Service) Columns(ctx context.Context) ([]string, error) {
	ctx, span := otel.Tracer("dataset-api/usecase").Start(ctx, "Columns")
	defer span.End()

	cols, err := s.eng.Columns(ctx, s.table)
	if err != nil {
		metrics.ColumnsRequests.WithLabelValues("internal_error").Inc()
		span.RecordError(err)
		s.log.WithContext(ctx).Error("columns failed", zap.Error(err))
		return nil, err
	}
	metrics.ColumnsRequests.WithLabelValues("ok").Inc()
	if cols == nil {
		cols = []string{}
	}
	return cols, nil
}
