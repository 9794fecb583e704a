// Package logger builds the process-wide slog.Logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ekisa-team/lector/internal/env"
	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	level      slog.Level
	logToFile  bool
	logFile    string
	maxSizeMB  int
	maxBackups int
	output     io.Writer
}

// Option configures the logger.
type Option func(*options)

// WithLogToFile enables writing logs to a rotating file in addition to stderr.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the path of the rotating log file.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithOutput replaces stderr as the console destination.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// New creates a logger for the given environment.
// Development logs are colorized with tint; production logs are JSON.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		level:      slog.LevelInfo,
		logFile:    "logs/lector.log",
		maxSizeMB:  50,
		maxBackups: 3,
		output:     os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	w := o.output
	if o.logToFile && o.logFile != "" {
		w = io.MultiWriter(o.output, &lumberjack.Logger{
			Filename:   o.logFile,
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			Compress:   true,
		})
	}

	if environment.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: o.level}))
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      o.level,
		TimeFormat: time.Kitchen,
		NoColor:    o.logToFile,
	}))
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
