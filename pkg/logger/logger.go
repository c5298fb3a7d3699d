// Package logger builds the structured zap logger used across study-pace
// and provides field helpers for the domain's common keys.
package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger.
type Options struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string

	// Format is "json" or "console".
	Format string

	// Development enables stack traces on warnings and human-friendly output.
	Development bool

	// Name is attached as the logger name, e.g. "worker".
	Name string
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Level:  "info",
		Format: "json",
	}
}

// ParseLevel parses a level string, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New creates a zap logger with the given options.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	if opts.Format == "console" {
		cfg.Encoding = "console"
	} else {
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if opts.Name != "" {
		log = log.Named(opts.Name)
	}
	return log, nil
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// Domain field helpers.
func UserID(id string) zap.Field        { return zap.String("user_id", id) }
func TaskID(id string) zap.Field        { return zap.String("task_id", id) }
func ItemID(id string) zap.Field        { return zap.String("queue_item_id", id) }
func Table(name string) zap.Field       { return zap.String("table", name) }
func Persona(p string) zap.Field        { return zap.String("persona", p) }
func PlanID(id string) zap.Field        { return zap.String("plan_id", id) }
func Category(c string) zap.Field       { return zap.String("error_category", c) }
func Component(name string) zap.Field   { return zap.String("component", name) }
func Operation(name string) zap.Field   { return zap.String("operation", name) }
func RetryCount(n int) zap.Field        { return zap.Int("retry_count", n) }
func Latency(d time.Duration) zap.Field { return zap.Duration("latency", d) }
