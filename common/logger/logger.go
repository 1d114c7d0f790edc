// common/logger/logger.go

package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/YaganovValera/dataset-api/common/ctxkeys"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config описывает, как инициализировать zap-логгер.
// Level   — "debug" | "info" | "warn" | "error" … (по умолчанию "info")
// DevMode — true → человекочитаемый консольный вывод, иначе JSON.
type Config struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

// ApplyDefaults заполняет пустые поля.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate проверяет, что уровень логирования распознаётся zap.
func (c Config) Validate() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("logger: invalid level %q: %w", c.Level, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Logger wrapper
// -----------------------------------------------------------------------------

// Logger — тонкая обёртка над *zap.Logger.
type Logger struct {
	raw *zap.Logger
}

// New создаёт Logger по заданному Config.
func New(cfg Config) (*Logger, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zapCfg := buildZapConfig(cfg.DevMode)
	if err := setZapLevel(&zapCfg, cfg.Level); err != nil {
		return nil, err
	}

	zl, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger: build zap: %w", err)
	}
	return &Logger{raw: zl}, nil
}

// NewNop возвращает логгер, который ничего не пишет. Удобен в тестах.
func NewNop() *Logger {
	return &Logger{raw: zap.NewNop()}
}

// FromZap оборачивает уже сконфигурированный *zap.Logger.
func FromZap(zl *zap.Logger) *Logger {
	return &Logger{raw: zl}
}

// -----------------------------------------------------------------------------
// Public methods
// -----------------------------------------------------------------------------

// Sync сбрасывает все буферы (ошибки игнорируются).
func (l *Logger) Sync() { _ = l.raw.Sync() }

// Named создаёт sub-logger с префиксом.
func (l *Logger) Named(name string) *Logger {
	return &Logger{raw: l.raw.Named(name)}
}

// With добавляет постоянные поля.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{raw: l.raw.With(fields...)}
}

// WithContext добавляет поля trace_id и request_id из контекста.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make([]zap.Field, 0, 2)
	if v, ok := ctx.Value(ctxkeys.TraceIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("trace_id", v))
	}
	if v, ok := ctx.Value(ctxkeys.RequestIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{raw: l.raw.With(fields...)}
}

// Raw отдаёт исходный *zap.Logger для библиотек, которые принимают его напрямую.
func (l *Logger) Raw() *zap.Logger { return l.raw }

// Sugar возвращает SugaredLogger для printf‑стиля.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.raw.Sugar()
}

// Уровни
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.raw.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.raw.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.raw.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.raw.Error(msg, fields...) }

// -----------------------------------------------------------------------------
// Context helpers
// -----------------------------------------------------------------------------

// ContextWithTraceID возвращает новый контекст с trace-ID.
func ContextWithTraceID(ctx context.Context, tid string) context.Context {
	return context.WithValue(ctx, ctxkeys.TraceIDKey, tid)
}

// ContextWithRequestID возвращает новый контекст с request-ID.
func ContextWithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxkeys.RequestIDKey, rid)
}

// RequestIDFromContext достаёт request-ID, если он был выставлен middleware.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxkeys.RequestIDKey).(string)
	return v
}
