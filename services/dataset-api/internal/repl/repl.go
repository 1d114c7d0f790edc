// services/dataset-api/internal/repl/repl.go
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/peterh/liner"
)

const (
	prompt     = "dataset> "
	contPrompt = "     ...> "
)

var commands = []string{
	`\columns`, `\export `, `\health`, `\help`, `\next`, `\nulls`, `\page `,
	`\pagesize `, `\params`, `\prev`, `\q`, `\set `, `\unset `,
}

// Run запускает интерактивную консоль до \q, EOF или отмены ctx.
func Run(ctx context.Context, c *Client, out io.Writer) error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetMultiLineMode(true)

	// колонки для автодополнения; сервер может быть ещё недоступен
	cols, _ := c.Columns(ctx)
	ln.SetCompleter(completer(cols))

	fmt.Fprintln(out, "Connected to dataset-api. Type \\help for commands, \\q to quit.")

	s := NewSession(c, out)
	for ctx.Err() == nil {
		p := prompt
		if s.Pending() {
			p = contPrompt
		}
		line, err := ln.Prompt(p)
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			s.Reset()
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(out)
			return nil
		case err != nil:
			return fmt.Errorf("repl: read input: %w", err)
		}

		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		reqCtx, stop := interruptible(ctx)
		quit := s.Handle(reqCtx, line)
		stop()
		if quit {
			return nil
		}
	}
	return nil
}

// interruptible отменяет ctx по Ctrl-C, пока выполняется запрос.
// Во время ввода SIGINT перехватывает liner.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

// completer дополняет последнее слово командой или именем колонки.
func completer(cols []string) liner.Completer {
	words := append(append([]string{}, commands...), cols...)
	sort.Strings(words)
	return func(line string) []string {
		i := strings.LastIndexAny(line, " \t(,")
		head, word := line[:i+1], line[i+1:]
		if word == "" {
			return nil
		}
		var out []string
		for _, w := range words {
			if strings.HasPrefix(strings.ToLower(w), strings.ToLower(word)) {
				out = append(out, head+w)
			}
		}
		return out
	}
}
