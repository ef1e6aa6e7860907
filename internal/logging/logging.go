// Package logging wraps a process-wide zerolog logger and carries a
// request-scoped correlation id through context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level  string // trace, debug, info, warn, error; default info
	Format string // json or console; default json
	Output io.Writer
}

var (
	mu  sync.RWMutex
	log = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init reconfigures the global logger. Safe to call more than once.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	l := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()

	mu.Lock()
	log = l
	mu.Unlock()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

type ctxKey struct{}

// WithCorrelationID returns a context whose logger tags every event with id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	l := Logger().With().Str("correlation_id", id).Logger()
	return context.WithValue(ctx, ctxKey{}, correlated{id: id, logger: l})
}

type correlated struct {
	id     string
	logger zerolog.Logger
}

// CorrelationID returns the id stored by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	if c, ok := ctx.Value(ctxKey{}).(correlated); ok {
		return c.id
	}
	return ""
}

// Ctx returns the request logger, falling back to the global one.
func Ctx(ctx context.Context) *zerolog.Logger {
	if c, ok := ctx.Value(ctxKey{}).(correlated); ok {
		l := c.logger
		return &l
	}
	l := Logger()
	return &l
}
