package engine

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
)

// Row — одна строка результата. Сериализуется как JSON-объект
// с ключами в порядке проекции.
type Row struct {
	cols []string
	vals []any
}

// NewRow собирает строку; повторяющееся имя колонки оставляет первую
// позицию, но берёт последнее значение.
func NewRow(columns []string, values []any) Row {
	idx := make(map[string]int, len(columns))
	r := Row{cols: make([]string, 0, len(columns)), vals: make([]any, 0, len(columns))}
	for i, c := range columns {
		if j, ok := idx[c]; ok {
			r.vals[j] = values[i]
			continue
		}
		idx[c] = len(r.cols)
		r.cols = append(r.cols, c)
		r.vals = append(r.vals, values[i])
	}
	return r
}

// Get возвращает значение колонки.
func (r Row) Get(col string) (any, bool) {
	for i, c := range r.cols {
		if c == col {
			return r.vals[i], true
		}
	}
	return nil, false
}

// Len — число уникальных колонок.
func (r Row) Len() int { return len(r.cols) }

// MarshalJSON пишет объект, сохраняя порядок колонок.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(r.vals[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalize приводит значение драйвера к виду, который кодируется в JSON.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int8, int16, int32, int64, uint8, uint16, uint32, uint64, int, uint:
		return x
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x.String()
	case duckdb.Decimal:
		return decimalToFloat(x)
	case duckdb.Interval:
		return map[string]any{"months": x.Months, "days": x.Days, "micros": x.Micros}
	case duckdb.Map:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(normalize(k))] = normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return x
	case time.Time:
		return normalizeTime(x)
	case fmt.Stringer:
		return x.String()
	default:
		return x
	}
}

// -----------------------------------------------------------------------------
// Типизированные колонки
// -----------------------------------------------------------------------------

// colKind — типы, для которых значение драйвера не совпадает с текстом DuckDB.
type colKind int

const (
	kindOther colKind = iota
	kindDate
	kindTime
	kindUUID
)

// Границы DATE и TIMESTAMP, которыми DuckDB кодирует ±infinity.
const (
	dateInfDays   = math.MaxInt32
	tsInfMicros   = math.MaxInt64
	secondsPerDay = 24 * 60 * 60
)

func columnKind(dbType string) colKind {
	switch strings.ToUpper(dbType) {
	case "DATE":
		return kindDate
	case "TIME":
		return kindTime
	case "UUID":
		return kindUUID
	}
	return kindOther
}

// columnKinds читает типы колонок результата.
func columnKinds(types []*sql.ColumnType) []colKind {
	kinds := make([]colKind, len(types))
	for i, ct := range types {
		kinds[i] = columnKind(ct.DatabaseTypeName())
	}
	return kinds
}

// normalizeColumn — normalize с учётом типа колонки.
func normalizeColumn(k colKind, v any) any {
	switch k {
	case kindDate:
		if t, ok := v.(time.Time); ok {
			return formatDate(t)
		}
	case kindTime:
		if t, ok := v.(time.Time); ok {
			return t.Format("15:04:05.999999")
		}
	case kindUUID:
		if b, ok := v.([]byte); ok && len(b) == 16 {
			if u, err := uuid.FromBytes(b); err == nil {
				return u.String()
			}
		}
	}
	return normalize(v)
}

func formatDate(t time.Time) string {
	days := t.Unix() / secondsPerDay
	if t.Unix() < 0 && t.Unix()%secondsPerDay != 0 {
		days--
	}
	switch days {
	case dateInfDays:
		return "infinity"
	case -dateInfDays:
		return "-infinity"
	}
	return t.Format("2006-01-02")
}

// normalizeTime: time.Time кодируется в JSON только для годов 0..9999.
func normalizeTime(t time.Time) any {
	if y := t.Year(); y >= 0 && y <= 9999 {
		return t
	}
	switch t.UnixMicro() {
	case tsInfMicros:
		return "infinity"
	case -tsInfMicros:
		return "-infinity"
	}
	return t.Format(time.RFC3339Nano)
}

// NaN и бесконечности в JSON непредставимы.
func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func decimalToFloat(d duckdb.Decimal) float64 {
	if d.Value == nil {
		return 0
	}
	num := new(big.Float).SetInt(d.Value)
	den := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil))
	f, _ := new(big.Float).Quo(num, den).Float64()
	return f
}
