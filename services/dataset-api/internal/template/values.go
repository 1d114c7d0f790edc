package template

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// normalize приводит значение параметра к типу, который понимает драйвер:
// целые -> int64, прочие числа -> float64, массивы и объекты -> JSON-текст.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", x.String())
		}
		return f, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// sqlLiteral — запись нормализованного значения как SQL-литерала.
func sqlLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return quoteString(x)
	default:
		return quoteString(fmt.Sprint(x))
	}
}

// textOf повторяет CAST(value AS VARCHAR) движка для нормализованных значений.
func textOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// formatFloat печатает целые double как "15.0", как это делает DuckDB.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if math.Trunc(f) == f && math.Abs(f) < 1e15 && !strings.ContainsAny(s, ".eE") {
		return s + ".0"
	}
	return s
}
