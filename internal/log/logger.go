package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"ledger/internal/core"
)

// Logger wraps slog.Logger and stamps every record with a component.
// base carries the handler and any With attributes, but no component, so a
// sub-component logger replaces the component instead of repeating it.
type Logger struct {
	*slog.Logger
	base      *slog.Logger
	component string
}

func newLogger(base *slog.Logger, component string) *Logger {
	return &Logger{
		Logger:    base.With(FieldComponent, component),
		base:      base,
		component: component,
	}
}

type Config struct {
	Level     slog.Level
	Format    string // "text" or "json"
	Component string
	Output    io.Writer
	AddSource bool
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Format:    "text",
		Component: ComponentApp,
		Output:    os.Stdout,
	}
}

func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: config.Level, AddSource: config.AddSource}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	component := config.Component
	if component == "" {
		component = ComponentApp
	}
	return newLogger(slog.New(handler), component)
}

// Default wraps slog.Default for callers that were not handed a logger.
func Default(component string) *Logger {
	return newLogger(slog.Default(), component)
}

// ParseLevel accepts debug, info, warn and error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func (l *Logger) With(args ...any) *Logger {
	return newLogger(l.base.With(args...), l.component)
}

// WithComponent derives a logger for a sub-component sharing the handler.
func (l *Logger) WithComponent(component string) *Logger {
	return newLogger(l.base, component)
}

func (l *Logger) WithAccount(accountID int64) *Logger {
	return l.With(FieldAccountID, accountID)
}

// LogError logs err at error level with its error_type classification.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, FieldError, err, FieldErrorType, ErrorType(err))
	l.Logger.ErrorContext(ctx, msg, args...)
}

func (l *Logger) Component() string {
	return l.component
}

// SetDefault makes logger the process-wide slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// ErrorType maps ledger errors to the error_type log field.
func ErrorType(err error) string {
	var (
		pe     *core.PatternError
		netErr net.Error
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, core.ErrConflict):
		return ErrorTypeConflict
	case errors.Is(err, core.ErrInvalidRange):
		return ErrorTypeValidation
	case errors.As(err, &pe), errors.Is(err, core.ErrPattern):
		return ErrorTypePattern
	case errors.Is(err, core.ErrStorage):
		return ErrorTypeDatabase
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorTypeTimeout
	case errors.As(err, &netErr):
		return ErrorTypeNetwork
	}
	return ErrorTypeInternal
}
