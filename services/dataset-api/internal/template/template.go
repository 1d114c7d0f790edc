// services/dataset-api/internal/template/template.go
//
// Пакет template разбирает SQL-шаблон вида "... WHERE age = {age}" и
// превращает его в параметризованный запрос DuckDB ($p1 + sql.Named).
// Значения никогда не подставляются в текст запроса, кроме
// идентификаторов в двойных кавычках, где они экранируются.
package template

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Error — ошибка разбора шаблона. Pos — байтовое смещение в шаблоне.
type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (at position %d)", e.Msg, e.Pos)
}

// MissingParamError — плейсхолдер без значения в params.
type MissingParamError struct {
	Name string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("missing value for placeholder {%s}", e.Name)
}

// Statement — скомпилированный шаблон.
type Statement struct {
	// SQL — текст для движка с параметрами $p1, $p2, ...
	SQL string
	// Args — значения в виде sql.NamedArg, по одному на имя.
	// DuckDB сравнивает имена параметров без учёта регистра, поэтому
	// {a} и {A} получают разные позиционные имена.
	Args []any
	// Params — имена использованных параметров в порядке первого появления.
	Params []string

	rendered string
}

// Render возвращает эквивалентный SQL с подставленными литералами.
// Используется только для логов и аудита, никогда не исполняется.
func (s *Statement) Render() string { return s.rendered }

// Compile разбирает шаблон и связывает его с params.
// Неиспользованные параметры игнорируются.
func Compile(tmpl string, params map[string]any) (*Statement, error) {
	c := &compiler{src: tmpl, params: params, binds: make(map[string]string)}
	if err := c.run(); err != nil {
		return nil, err
	}
	return &Statement{
		SQL:      c.sql.String(),
		Args:     c.args,
		Params:   c.names,
		rendered: c.render.String(),
	}, nil
}

// -----------------------------------------------------------------------------
// Compiler
// -----------------------------------------------------------------------------

type compiler struct {
	src    string
	pos    int
	params map[string]any

	sql    strings.Builder
	render strings.Builder

	binds map[string]string // имя плейсхолдера -> имя параметра драйвера
	names []string
	args  []any
}

// emit пишет один и тот же текст в SQL и в рендер.
func (c *compiler) emit(s string) {
	c.sql.WriteString(s)
	c.render.WriteString(s)
}

func (c *compiler) run() error {
	for c.pos < len(c.src) {
		ch := c.src[c.pos]
		switch {
		case ch == '\'':
			if err := c.stringLiteral(); err != nil {
				return err
			}
		case ch == '"':
			if err := c.quotedIdent(); err != nil {
				return err
			}
		case ch == '-' && c.peek(1) == '-':
			c.lineComment()
		case ch == '/' && c.peek(1) == '*':
			c.blockComment()
		case ch == '{' || ch == '}':
			text, name, err := c.brace()
			if err != nil {
				return err
			}
			if name == "" {
				c.emit(text)
				continue
			}
			v, ref, err := c.bind(name, true)
			if err != nil {
				return err
			}
			c.sql.WriteString(ref)
			// "{a}1" не должно превратиться в $p11
			if c.pos < len(c.src) && isIdentByte(c.src[c.pos]) {
				c.sql.WriteByte(' ')
			}
			c.render.WriteString(sqlLiteral(v))
		default:
			c.emit(c.src[c.pos : c.pos+1])
			c.pos++
		}
	}
	return nil
}

func (c *compiler) peek(off int) byte {
	if c.pos+off < len(c.src) {
		return c.src[c.pos+off]
	}
	return 0
}

// brace разбирает "{{", "}}" или "{name}" начиная с c.pos.
// Для экранированной скобки возвращает text, для плейсхолдера — name.
func (c *compiler) brace() (text, name string, err error) {
	start := c.pos
	if c.src[c.pos] == '}' {
		if c.peek(1) == '}' {
			c.pos += 2
			return "}", "", nil
		}
		return "", "", &Error{Pos: start, Msg: "single '}' encountered in template"}
	}
	if c.peek(1) == '{' {
		c.pos += 2
		return "{", "", nil
	}

	end := strings.IndexByte(c.src[start+1:], '}')
	if end < 0 {
		return "", "", &Error{Pos: start, Msg: "expected '}' before end of template"}
	}
	field := c.src[start+1 : start+1+end]
	if err := checkField(field, start); err != nil {
		return "", "", err
	}
	c.pos = start + end + 2
	return "", field, nil
}

func checkField(field string, pos int) error {
	switch {
	case field == "":
		return &Error{Pos: pos, Msg: "positional placeholders are not supported, use {name}"}
	case strings.ContainsRune(field, '{'):
		return &Error{Pos: pos, Msg: "unexpected '{' in placeholder"}
	case strings.ContainsAny(field, ".[]!:"):
		return &Error{Pos: pos, Msg: fmt.Sprintf("unsupported placeholder syntax {%s}, only {name} is allowed", field)}
	case field[0] >= '0' && field[0] <= '9':
		return &Error{Pos: pos, Msg: fmt.Sprintf("positional placeholder {%s} is not supported, use {name}", field)}
	}
	for i := 0; i < len(field); i++ {
		if !isIdentByte(field[i]) {
			return &Error{Pos: pos, Msg: fmt.Sprintf("invalid placeholder name {%s}", field)}
		}
	}
	return nil
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// bind достаёт значение параметра. С register=true значение один раз
// попадает в Args и возвращается ссылка "$pN"; идентификаторы
// встраиваются и в Args не нужны.
func (c *compiler) bind(name string, register bool) (any, string, error) {
	raw, ok := c.params[name]
	if !ok {
		return nil, "", &MissingParamError{Name: name}
	}
	v, err := normalize(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parameter %q: %w", name, err)
	}
	if !register {
		return v, "", nil
	}
	ref, ok := c.binds[name]
	if !ok {
		arg := "p" + strconv.Itoa(len(c.args)+1)
		ref = "$" + arg
		c.binds[name] = ref
		c.names = append(c.names, name)
		c.args = append(c.args, sql.Named(arg, v))
	}
	return v, ref, nil
}

// -----------------------------------------------------------------------------
// Quoted regions
// -----------------------------------------------------------------------------

// part — кусок содержимого кавычек: либо текст, либо плейсхолдер.
type part struct {
	text  string
	name  string
	ref   string
	value any
}

// quoted собирает содержимое кавычек q до закрывающей, обрабатывая
// удвоенную кавычку и скобки шаблона.
func (c *compiler) quoted(q byte) ([]part, error) {
	start := c.pos
	c.pos++ // открывающая кавычка

	var (
		parts []part
		buf   strings.Builder
	)
	flush := func() {
		if buf.Len() > 0 {
			parts = append(parts, part{text: buf.String()})
			buf.Reset()
		}
	}
	for c.pos < len(c.src) {
		ch := c.src[c.pos]
		switch {
		case ch == q && c.peek(1) == q:
			buf.WriteByte(q)
			c.pos += 2
		case ch == q:
			c.pos++
			flush()
			return parts, nil
		case ch == '{' || ch == '}':
			text, name, err := c.brace()
			if err != nil {
				return nil, err
			}
			if name == "" {
				buf.WriteString(text)
				continue
			}
			v, ref, err := c.bind(name, q == '\'')
			if err != nil {
				return nil, err
			}
			flush()
			parts = append(parts, part{name: name, ref: ref, value: v})
		default:
			buf.WriteByte(ch)
			c.pos++
		}
	}
	return nil, &Error{Pos: start, Msg: fmt.Sprintf("unterminated quoted region starting with %c", q)}
}

// stringLiteral: 'a{x}b' -> ('a' || CAST($p1 AS VARCHAR) || 'b').
func (c *compiler) stringLiteral() error {
	parts, err := c.quoted('\'')
	if err != nil {
		return err
	}

	hasParam, hasNull := false, false
	for _, p := range parts {
		if p.name != "" {
			hasParam = true
			hasNull = hasNull || p.value == nil
		}
	}
	if !hasParam {
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.text)
		}
		c.emit(quoteString(b.String()))
		return nil
	}

	exprs := make([]string, 0, len(parts))
	var text strings.Builder
	for _, p := range parts {
		if p.name == "" {
			exprs = append(exprs, quoteString(p.text))
			text.WriteString(p.text)
			continue
		}
		exprs = append(exprs, "CAST("+p.ref+" AS VARCHAR)")
		text.WriteString(textOf(p.value))
	}
	if len(exprs) == 1 {
		c.sql.WriteString(exprs[0])
	} else {
		c.sql.WriteString("(" + strings.Join(exprs, " || ") + ")")
	}

	if hasNull {
		c.render.WriteString("NULL")
	} else {
		c.render.WriteString(quoteString(text.String()))
	}
	return nil
}

// quotedIdent: "col_{n}" -> значение встраивается как часть идентификатора.
func (c *compiler) quotedIdent() error {
	parts, err := c.quoted('"')
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, p := range parts {
		if p.name == "" {
			b.WriteString(p.text)
			continue
		}
		b.WriteString(textOf(p.value))
	}
	c.emit(QuoteIdent(b.String()))
	return nil
}

// -----------------------------------------------------------------------------
// Comments
// -----------------------------------------------------------------------------

func (c *compiler) lineComment() {
	end := strings.IndexByte(c.src[c.pos:], '\n')
	if end < 0 {
		c.emit(c.src[c.pos:])
		c.pos = len(c.src)
		return
	}
	c.emit(c.src[c.pos : c.pos+end+1])
	c.pos += end + 1
}

func (c *compiler) blockComment() {
	end := strings.Index(c.src[c.pos+2:], "*/")
	if end < 0 {
		c.emit(c.src[c.pos:])
		c.pos = len(c.src)
		return
	}
	stop := c.pos + 2 + end + 2
	c.emit(c.src[c.pos:stop])
	c.pos = stop
}

// -----------------------------------------------------------------------------
// Quoting helpers
// -----------------------------------------------------------------------------

// QuoteIdent заключает идентификатор в двойные кавычки.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteString заключает строку в одинарные кавычки.
func QuoteString(s string) string { return quoteString(s) }

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
