// services/dataset-api/internal/repl/session.go
package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/YaganovValera/dataset-api/services/dataset-api/internal/template"
)

// DefaultPageSize — строк на страницу вывода.
const DefaultPageSize = 100

const helpText = `Commands:
  \columns            list dataset columns
  \health             server health
  \set NAME VALUE     set a query parameter (VALUE is JSON, otherwise a string)
  \unset NAME         remove a query parameter
  \params             show parameters
  \next, \prev        show the next / previous page of the last result
  \page N             show page N of the last result
  \pagesize N         rows per page (default 100)
  \nulls              toggle display of columns that are NULL in every row
  \export FORMAT FILE write the last successful query to FILE (csv, parquet, json)
  \q                  quit
SQL is sent when a line ends with ';'. Use {name} to reference parameters.
Ctrl-C cancels a running query.`

// Session — состояние консоли: параметры, незавершённый SQL и
// последний успешный результат для постраничного вывода и \export.
type Session struct {
	client  *Client
	out     io.Writer
	params  map[string]any
	pending strings.Builder

	last       *QueryResult
	lastQuery  string
	lastParams map[string]any
	page       int
	pageSize   int
	showNulls  bool
}

// NewSession создаёт сессию, пишущую в out.
func NewSession(c *Client, out io.Writer) *Session {
	return &Session{client: c, out: out, params: make(map[string]any), pageSize: DefaultPageSize}
}

// Pending сообщает, что набирается многострочный запрос.
func (s *Session) Pending() bool { return s.pending.Len() > 0 }

// Reset сбрасывает незавершённый запрос.
func (s *Session) Reset() { s.pending.Reset() }

// Params возвращает копию текущих параметров.
func (s *Session) Params() map[string]any {
	cp := make(map[string]any, len(s.params))
	for k, v := range s.params {
		cp[k] = v
	}
	return cp
}

// Handle обрабатывает одну строку ввода; true означает выход.
func (s *Session) Handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if !s.Pending() {
		if trimmed == "" {
			return false
		}
		if strings.HasPrefix(trimmed, `\`) {
			return s.command(ctx, trimmed)
		}
	}

	if s.Pending() {
		s.pending.WriteByte('\n')
	}
	s.pending.WriteString(line)
	if !strings.HasSuffix(trimmed, ";") {
		return false
	}

	query := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	query = strings.TrimSpace(strings.TrimRight(query, "; \t\n"))
	if query == "" {
		return false
	}
	s.query(ctx, query)
	return false
}

func (s *Session) command(ctx context.Context, line string) bool {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case `\q`, `\quit`:
		return true
	case `\h`, `\help`, `\?`:
		fmt.Fprintln(s.out, helpText)
	case `\columns`:
		cols, err := s.client.Columns(ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		for _, c := range cols {
			fmt.Fprintln(s.out, c)
		}
	case `\health`:
		h, err := s.client.Health(ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprintf(s.out, "%s (%s)\n", h.Status, h.Timestamp)
	case `\set`:
		key, raw, ok := strings.Cut(rest, " ")
		if !ok || key == "" || strings.TrimSpace(raw) == "" {
			s.fail(errors.New(`usage: \set NAME VALUE`))
			return false
		}
		s.params[key] = parseValue(strings.TrimSpace(raw))
	case `\unset`:
		if rest == "" {
			s.fail(errors.New(`usage: \unset NAME`))
			return false
		}
		delete(s.params, rest)
	case `\next`:
		s.showPage(s.page + 1)
	case `\prev`:
		s.showPage(s.page - 1)
	case `\page`:
		n, err := strconv.Atoi(rest)
		if err != nil {
			s.fail(errors.New(`usage: \page N`))
			return false
		}
		s.showPage(n - 1)
	case `\pagesize`:
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			s.fail(errors.New(`usage: \pagesize N (N > 0)`))
			return false
		}
		s.pageSize = n
		if s.last != nil {
			s.showPage(0)
		}
	case `\nulls`:
		s.showNulls = !s.showNulls
		if s.last != nil {
			s.showPage(s.page)
		}
	case `\export`:
		s.export(ctx, rest)
	case `\params`:
		keys := make([]string, 0, len(s.params))
		for k := range s.params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(s.out, "%s = %s\n", k, formatParam(s.params[k]))
		}
	default:
		s.fail(fmt.Errorf("unknown command %s, try \\help", name))
	}
	return false
}

func (s *Session) query(ctx context.Context, q string) {
	params := s.Params()
	res, err := s.client.Query(ctx, q, params)
	if err != nil {
		s.fail(err)
		return
	}
	s.last, s.lastQuery, s.lastParams = res, q, params
	s.showPage(0)
}

// showPage печатает страницу n (с нуля) последнего результата.
func (s *Session) showPage(n int) {
	if s.last == nil {
		s.fail(errors.New("no result yet, run a query first"))
		return
	}
	pages := pageCount(len(s.last.Rows), s.pageSize)
	if n < 0 || n >= pages {
		s.fail(fmt.Errorf("page %d out of range 1..%d", n+1, pages))
		return
	}
	s.page = n

	res := s.last
	var hidden []string
	if !s.showNulls {
		res, hidden = hideNullColumns(res)
	}
	start := n * s.pageSize
	end := min(start+s.pageSize, len(res.Rows))
	printTable(s.out, res.Columns, res.Rows[start:end])

	if pages > 1 {
		fmt.Fprintf(s.out, "(%s, page %d of %d, rows %d-%d; \\next, \\prev, \\page N)\n",
			rowCount(len(res.Rows)), n+1, pages, start+1, end)
	} else {
		fmt.Fprintf(s.out, "(%s)\n", rowCount(len(res.Rows)))
	}
	if len(hidden) > 0 {
		fmt.Fprintf(s.out, "(hidden all-NULL columns: %s; \\nulls to show)\n", strings.Join(hidden, ", "))
	}
}

// exportFormats — допустимые FORMAT для COPY.
var exportFormats = map[string]string{"csv": "CSV", "parquet": "PARQUET", "json": "JSON"}

// export оборачивает последний успешный запрос в COPY ... TO.
func (s *Session) export(ctx context.Context, args string) {
	format, file, _ := strings.Cut(args, " ")
	file = strings.TrimSpace(file)
	fmtName, ok := exportFormats[strings.ToLower(format)]
	if !ok || file == "" {
		s.fail(errors.New(`usage: \export csv|parquet|json FILE`))
		return
	}
	if s.lastQuery == "" {
		s.fail(errors.New("nothing to export, run a query first"))
		return
	}
	res, err := s.client.Query(ctx, exportSQL(s.lastQuery, file, fmtName), s.lastParams)
	if err != nil {
		s.fail(err)
		return
	}
	if n, ok := copiedRows(res); ok {
		fmt.Fprintf(s.out, "Exported %s to %s\n", rowCount(int(n)), file)
		return
	}
	fmt.Fprintf(s.out, "Exported to %s\n", file)
}

// exportSQL строит COPY-шаблон. Скобки в имени файла экранируются,
// чтобы шаблонизатор не принял их за плейсхолдеры.
func exportSQL(query, file, format string) string {
	path := strings.NewReplacer("{", "{{", "}", "}}").Replace(template.QuoteString(file))
	return fmt.Sprintf("COPY (%s) TO %s (FORMAT %s)", query, path, format)
}

// copiedRows достаёт число строк из ответа COPY, если сервер его вернул.
func copiedRows(res *QueryResult) (int64, bool) {
	if len(res.Rows) != 1 || len(res.Columns) != 1 {
		return 0, false
	}
	n, ok := res.Rows[0][res.Columns[0]].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	return v, err == nil
}

func (s *Session) fail(err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(s.out, "Cancelled.")
		return
	}
	fmt.Fprintf(s.out, "Error: %v\n", err)
}

func pageCount(rows, size int) int {
	if rows == 0 {
		return 1
	}
	return (rows + size - 1) / size
}

// hideNullColumns убирает колонки, которые NULL во всех строках.
// Пустой результат не трогается.
func hideNullColumns(res *QueryResult) (*QueryResult, []string) {
	if len(res.Rows) == 0 {
		return res, nil
	}
	var visible, hidden []string
	for _, c := range res.Columns {
		allNull := true
		for _, row := range res.Rows {
			if row[c] != nil {
				allNull = false
				break
			}
		}
		if allNull {
			hidden = append(hidden, c)
		} else {
			visible = append(visible, c)
		}
	}
	if len(hidden) == 0 {
		return res, nil
	}
	return &QueryResult{Columns: visible, Rows: res.Rows}, hidden
}

// parseValue разбирает значение \set: JSON, иначе строка как есть.
func parseValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	// хвост после JSON-значения делает ввод строкой
	if _, err := dec.Token(); err != io.EOF {
		return raw
	}
	return v
}

func formatParam(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// PrintResult печатает весь результат таблицей.
func PrintResult(w io.Writer, res *QueryResult) {
	printTable(w, res.Columns, res.Rows)
	fmt.Fprintf(w, "(%s)\n", rowCount(len(res.Rows)))
}

func printTable(w io.Writer, columns []string, rows []map[string]any) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))

	sep := make([]string, len(columns))
	for i, c := range columns {
		sep[i] = strings.Repeat("-", max(len(c), 3))
	}
	fmt.Fprintln(tw, strings.Join(sep, "\t"))

	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			cells[i] = formatCell(row[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func rowCount(n int) string {
	if n == 1 {
		return "1 row"
	}
	return fmt.Sprintf("%d rows", n)
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(x); err != nil {
			return fmt.Sprint(x)
		}
		return strings.TrimSpace(buf.String())
	}
}
