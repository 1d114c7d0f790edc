package engine

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/panjf2000/ants/v2"
)

var (
	// ErrClosed — движок уже закрыт.
	ErrClosed = errors.New("engine is closed")
	// ErrWorkerPanic — воркер упал с паникой.
	ErrWorkerPanic = errors.New("engine worker panicked")
)

// TooManyRowsError — результат превысил engine.max_rows.
type TooManyRowsError struct {
	Limit int
}

func (e *TooManyRowsError) Error() string {
	return fmt.Sprintf("result exceeds the limit of %d rows", e.Limit)
}

// TimeoutError — запрос прерван по engine.query_timeout.
type TimeoutError struct {
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query timed out after %s", e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsInternal сообщает, что ошибка вызвана неисправностью движка, а не запросом.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrWorkerPanic) ||
		errors.Is(err, ants.ErrPoolClosed) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var de *duckdb.Error
	if errors.As(err, &de) {
		switch de.Type {
		case duckdb.ErrorTypeInternal,
			duckdb.ErrorTypeFatal,
			duckdb.ErrorTypeOutOfMemory,
			duckdb.ErrorTypeConnection:
			return true
		}
	}
	return false
}

// IsTransient — ошибки ввода-вывода, которые имеет смысл повторить при загрузке.
func IsTransient(err error) bool {
	var de *duckdb.Error
	if errors.As(err, &de) {
		switch de.Type {
		case duckdb.ErrorTypeIO, duckdb.ErrorTypeNetwork, duckdb.ErrorTypeConnection:
			return true
		}
	}
	return false
}
