package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// log stays silent until Init is called, which keeps package tests quiet.
var log zerolog.Logger

// Init initializes the global logger
func Init(level string, pretty bool) {
	InitWithWriter(os.Stdout, level, pretty)
}

// InitWithWriter initializes the global logger on an arbitrary sink
func InitWithWriter(out io.Writer, level string, pretty bool) {
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	log = zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "radiocast").
		Logger()
}

// Get returns the global logger
func Get() *zerolog.Logger {
	return &log
}

// WithComponent returns a child logger tagged with a component name
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Debug logs debug level message
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info logs info level message
func Info() *zerolog.Event {
	return log.Info()
}

// Warn logs warning level message
func Warn() *zerolog.Event {
	return log.Warn()
}
