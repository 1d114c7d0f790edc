package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/YaganovValera/dataset-api/common/logger"
)

func openTest(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := Open(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func rowsJSON(t *testing.T, res *Result) string {
	t.Helper()
	b, err := json.Marshal(res.Rows)
	if err != nil {
		t.Fatalf("marshal rows: %v", err)
	}
	return string(b)
}

func TestQuery_Values(t *testing.T) {
	e := openTest(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name     string
		query    string
		args     []any
		wantCols []string
		wantJSON string
	}{
		{"select one", "SELECT 1 AS x", nil, []string{"x"}, `[{"x":1}]`},
		{"named param", "SELECT $v + 1 AS y", []any{sql.Named("v", int64(2))}, []string{"y"}, `[{"y":3}]`},
		{"projection order", "SELECT 2 AS b, 1 AS a", nil, []string{"b", "a"}, `[{"b":2,"a":1}]`},
		{"duplicate column keeps first position", "SELECT 1 AS a, 5 AS z, 2 AS a", nil, []string{"a", "z", "a"}, `[{"a":2,"z":5}]`},
		{"decimal as float", "SELECT 1.50::DECIMAL(4,2) AS d", nil, []string{"d"}, `[{"d":1.5}]`},
		{"nan as string", "SELECT 'nan'::DOUBLE AS f", nil, []string{"f"}, `[{"f":"NaN"}]`},
		{"map keys stringified", "SELECT MAP {1: 'a'} AS m", nil, []string{"m"}, `[{"m":{"1":"a"}}]`},
		{"list and struct", "SELECT [1, 2] AS l, {'k': 'v'} AS s", nil, []string{"l", "s"}, `[{"l":[1,2],"s":{"k":"v"}}]`},
		{"null", "SELECT NULL AS n", nil, []string{"n"}, `[{"n":null}]`},
		{"uuid as text", "SELECT '5b1c3f4e-1111-4222-8333-444455556666'::UUID AS u", nil, []string{"u"}, `[{"u":"5b1c3f4e-1111-4222-8333-444455556666"}]`},
		{"date as text", "SELECT DATE '2020-01-02' AS d", nil, []string{"d"}, `[{"d":"2020-01-02"}]`},
		{"time as text", "SELECT TIME '12:34:56' AS t, TIME '01:02:03.5' AS f", nil, []string{"t", "f"}, `[{"t":"12:34:56","f":"01:02:03.5"}]`},
		{"timestamp in range", "SELECT TIMESTAMP '2020-01-02 03:04:05' AS ts", nil, []string{"ts"}, `[{"ts":"2020-01-02T03:04:05Z"}]`},
		{"timestamp past year 9999", "SELECT TIMESTAMP '10000-01-01 00:00:00' AS ts", nil, []string{"ts"}, `[{"ts":"10000-01-01T00:00:00Z"}]`},
		{"infinite timestamp", "SELECT 'infinity'::TIMESTAMP AS a, '-infinity'::TIMESTAMP AS b", nil, []string{"a", "b"}, `[{"a":"infinity","b":"-infinity"}]`},
		{"empty result", "SELECT 1 AS x WHERE false", nil, []string{"x"}, `[]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Query(ctx, tc.query, tc.args...)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(res.Columns) != len(tc.wantCols) {
				t.Fatalf("columns = %v; want %v", res.Columns, tc.wantCols)
			}
			for i := range tc.wantCols {
				if res.Columns[i] != tc.wantCols[i] {
					t.Errorf("columns = %v; want %v", res.Columns, tc.wantCols)
				}
			}
			if got := rowsJSON(t, res); got != tc.wantJSON {
				t.Errorf("rows = %s; want %s", got, tc.wantJSON)
			}
		})
	}
}

func TestQuery_SyntaxErrorIsClientError(t *testing.T) {
	e := openTest(t, Config{})
	_, err := e.Query(context.Background(), "SELEKT 1")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsInternal(err) {
		t.Errorf("syntax error classified as internal: %v", err)
	}
	var de *duckdb.Error
	if !errors.As(err, &de) || de.Type != duckdb.ErrorTypeParser {
		t.Errorf("expected parser error, got %v", err)
	}
}

func TestQuery_MaxRows(t *testing.T) {
	e := openTest(t, Config{MaxRows: 2})
	_, err := e.Query(context.Background(), "SELECT * FROM range(5)")
	var tm *TooManyRowsError
	if !errors.As(err, &tm) || tm.Limit != 2 {
		t.Fatalf("expected TooManyRowsError, got %v", err)
	}
	if IsInternal(err) {
		t.Error("row limit must not be internal")
	}
	if _, err := e.Query(context.Background(), "SELECT * FROM range(2)"); err != nil {
		t.Errorf("query at the limit failed: %v", err)
	}
}

func TestQuery_Timeout(t *testing.T) {
	e := openTest(t, Config{QueryTimeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := e.Query(context.Background(), "SELECT count(*) FROM range(100000) a, range(100000) b")
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("query was not interrupted in time: %v", time.Since(start))
	}
}

func TestColumns(t *testing.T) {
	e := openTest(t, Config{})
	ctx := context.Background()
	if err := e.Exec(ctx, `CREATE TABLE dataset (b INTEGER, "A" VARCHAR, c DOUBLE)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	cols, err := e.Columns(ctx, "dataset")
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	want := []string{"b", "A", "c"}
	if len(cols) != len(want) {
		t.Fatalf("cols = %v; want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("cols = %v; want %v", cols, want)
		}
	}

	missing, err := e.Columns(ctx, "nope")
	if err != nil || len(missing) != 0 {
		t.Errorf("missing table: cols=%v err=%v", missing, err)
	}
}

func TestConcurrentQueries(t *testing.T) {
	e := openTest(t, Config{MaxOpenConns: 2, MaxConcurrentQueries: 2})
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Query(context.Background(), "SELECT $i::BIGINT AS i", sql.Named("i", int64(i)))
			if err != nil {
				errs <- err
				return
			}
			if v, _ := res.Rows[0].Get("i"); v != int64(i) {
				errs <- errors.New("unexpected value")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClose(t *testing.T) {
	e, err := Open(Config{}, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}

	_, err = e.Query(context.Background(), "SELECT 1")
	if !errors.Is(err, ErrClosed) || !IsInternal(err) {
		t.Errorf("query after close: %v", err)
	}
	if err := e.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("ping after close: %v", err)
	}
}

func TestRun_PanicIsInternal(t *testing.T) {
	e := openTest(t, Config{})
	err := e.run(context.Background(), func(context.Context) error { panic("boom") })
	if !errors.Is(err, ErrWorkerPanic) || !IsInternal(err) {
		t.Errorf("expected internal panic error, got %v", err)
	}
}

func TestRun_QueuedRequestHonoursContext(t *testing.T) {
	e := openTest(t, Config{MaxConcurrentQueries: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	busy := make(chan error, 1)
	go func() {
		busy <- e.run(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	start := time.Now()
	err := e.run(ctx, func(context.Context) error {
		t.Error("task must not run while the pool is saturated")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("queued request waited %v after cancel", time.Since(start))
	}

	close(release)
	if err := <-busy; err != nil {
		t.Errorf("busy task: %v", err)
	}
}

func TestDSN(t *testing.T) {
	if got := dsn(Config{}); got != "" {
		t.Errorf("dsn(empty) = %q", got)
	}
	if got := dsn(Config{Threads: 4, MemoryLimit: "1GB"}); got != "?memory_limit=1GB&threads=4" {
		t.Errorf("dsn = %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}
	if cfg.MaxConcurrentQueries != cfg.MaxOpenConns || cfg.QueryTimeout != 30*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	bad := cfg
	bad.MaxRows = -1
	if bad.Validate() == nil {
		t.Error("negative max_rows must fail")
	}
}

func TestNormalizeTime(t *testing.T) {
	in := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := normalizeTime(in); got != in {
		t.Errorf("in-range time changed: %v", got)
	}
	far := time.Date(12000, 5, 6, 0, 0, 0, 0, time.UTC)
	if got := normalizeTime(far); got != "12000-05-06T00:00:00Z" {
		t.Errorf("normalizeTime(far) = %v", got)
	}
	if _, err := json.Marshal(normalizeTime(time.UnixMicro(math.MaxInt64).UTC())); err != nil {
		t.Errorf("infinite timestamp must encode: %v", err)
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), "2020-01-02"},
		{time.Date(1960, 3, 4, 0, 0, 0, 0, time.UTC), "1960-03-04"},
		{time.Unix(math.MaxInt32*secondsPerDay, 0).UTC(), "infinity"},
		{time.Unix(-math.MaxInt32*secondsPerDay, 0).UTC(), "-infinity"},
	}
	for _, tc := range tests {
		if got := formatDate(tc.in); got != tc.want {
			t.Errorf("formatDate(%v) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeColumn_UUIDBytes(t *testing.T) {
	raw := []byte{0x5b, 0x1c, 0x3f, 0x4e, 0x11, 0x11, 0x42, 0x22, 0x83, 0x33, 0x44, 0x44, 0x55, 0x55, 0x66, 0x66}
	if got := normalizeColumn(kindUUID, raw); got != "5b1c3f4e-1111-4222-8333-444455556666" {
		t.Errorf("uuid = %v", got)
	}
	if got := columnKind("uuid"); got != kindUUID {
		t.Errorf("columnKind(uuid) = %v", got)
	}
}
