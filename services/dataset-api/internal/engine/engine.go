// services/dataset-api/internal/engine/engine.go
//
// Пакет engine владеет встроенным DuckDB: один in-memory экземпляр на процесс,
// пул database/sql поверх него и пул воркеров ants, через который проходит
// каждый запрос.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/logger"
	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/metrics"
)

// columnsQuery перечисляет колонки таблицы в порядке каталога.
const columnsQuery = `
	SELECT column_name
	FROM information_schema.columns
	WHERE table_catalog = current_database()
	  AND table_schema = current_schema()
	  AND table_name = ?
	ORDER BY ordinal_position`

// Result — колонки в порядке проекции и строки в порядке выдачи движка.
type Result struct {
	Columns []string
	Rows    []Row
}

// Engine — общий для процесса дескриптор DuckDB.
type Engine struct {
	db     *sql.DB
	pool   *ants.Pool
	cfg    Config
	log    *logger.Logger
	closed atomic.Bool
}

// Open поднимает in-memory базу и пул воркеров.
func Open(cfg Config, log *logger.Logger) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics.Register(nil)
	log = log.Named("engine")

	connector, err := duckdb.NewConnector(dsn(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("engine: duckdb connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	pool, err := ants.NewPool(cfg.MaxConcurrentQueries, ants.WithPreAlloc(true), ants.WithNonblocking(true))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("engine: worker pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		pool.Release()
		_ = db.Close()
		return nil, fmt.Errorf("engine: ping: %w", err)
	}

	log.Info("engine: duckdb opened",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_concurrent_queries", cfg.MaxConcurrentQueries),
		zap.Duration("query_timeout", cfg.QueryTimeout),
	)
	return &Engine{db: db, pool: pool, cfg: cfg, log: log}, nil
}

// dsn — пустой путь означает in-memory базу; настройки идут query-параметрами.
func dsn(cfg Config) string {
	opts := url.Values{}
	if cfg.Threads > 0 {
		opts.Set("threads", strconv.Itoa(cfg.Threads))
	}
	if cfg.MemoryLimit != "" {
		opts.Set("memory_limit", cfg.MemoryLimit)
	}
	if len(opts) == 0 {
		return ""
	}
	return "?" + opts.Encode()
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

// Query исполняет запрос и материализует весь результат.
func (e *Engine) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	ctx, span := otel.Tracer("dataset-api/engine").Start(ctx, "Query",
		trace.WithAttributes(attribute.Int("db.args", len(args))),
	)
	defer span.End()

	var res *Result
	err := e.run(ctx, func(ctx context.Context) error {
		var err error
		res, err = e.query(ctx, query, args)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.rows", len(res.Rows)))
	return res, nil
}

// Exec исполняет запрос без результата (DDL при загрузке датасета).
func (e *Engine) Exec(ctx context.Context, query string, args ...any) error {
	ctx, span := otel.Tracer("dataset-api/engine").Start(ctx, "Exec")
	defer span.End()

	err := e.run(ctx, func(ctx context.Context) error {
		_, err := e.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Columns возвращает имена колонок таблицы в порядке каталога.
func (e *Engine) Columns(ctx context.Context, table string) ([]string, error) {
	ctx, span := otel.Tracer("dataset-api/engine").Start(ctx, "Columns",
		trace.WithAttributes(attribute.String("db.table", table)),
	)
	defer span.End()

	var cols []string
	err := e.run(ctx, func(ctx context.Context) error {
		rows, err := e.db.QueryContext(ctx, columnsQuery, table)
		if err != nil {
			return err
		}
		defer rows.Close()

		seen := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
		return rows.Err()
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("engine: columns of %q: %w", table, err)
	}
	return cols, nil
}

// Ping проверяет, что движок отвечает (используется /readyz).
func (e *Engine) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return e.db.PingContext(ctx)
}

// Close останавливает пул воркеров и закрывает базу.
// Повторный вызов ничего не делает.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}
	var poolErr error
	if deadline, ok := ctx.Deadline(); ok {
		poolErr = e.pool.ReleaseTimeout(time.Until(deadline))
	} else {
		e.pool.Release()
	}
	return errors.Join(poolErr, e.db.Close())
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// run отправляет fn в пул воркеров и ждёт завершения. Пока все воркеры
// заняты, запрос ждёт в очереди не дольше, чем живёт ctx.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	var err error
	done := make(chan struct{})
	task := func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				e.log.Error("engine: worker panic", zap.Any("panic", p))
				err = fmt.Errorf("%w: %v", ErrWorkerPanic, p)
			}
		}()
		metrics.EngineInflight.Inc()
		defer metrics.EngineInflight.Dec()
		err = fn(ctx)
	}
	if submitErr := e.submit(ctx, task); submitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return &TimeoutError{After: e.cfg.QueryTimeout, Err: ctxErr}
			}
			return ctxErr
		}
		return fmt.Errorf("engine: submit: %w", submitErr)
	}
	<-done

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{After: e.cfg.QueryTimeout, Err: err}
	}
	return err
}

// submitRetry — пауза между попытками занять воркер.
const submitRetry = 5 * time.Millisecond

// submit кладёт task в неблокирующий пул, повторяя попытку при
// ErrPoolOverload, пока ctx жив.
func (e *Engine) submit(ctx context.Context, task func()) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		err := e.pool.Submit(task)
		if !errors.Is(err, ants.ErrPoolOverload) {
			return err
		}
		timer.Reset(submitRetry)
	}
}

func (e *Engine) query(ctx context.Context, query string, args []any) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	kinds := columnKinds(types)

	res := &Result{Columns: cols, Rows: []Row{}}
	for rows.Next() {
		if e.cfg.MaxRows > 0 && len(res.Rows) >= e.cfg.MaxRows {
			return nil, &TooManyRowsError{Limit: e.cfg.MaxRows}
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] = normalizeColumn(kinds[i], vals[i])
		}
		res.Rows = append(res.Rows, NewRow(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
