// Package log wraps zerolog with the level/encoding conventions the
// agent's CLI exposes, plus helpers for attaching the structured fields
// components use when tagging events (component, node_id).
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/p2p-agent/pkg/types"
)

// Logger is the global logger instance, configured by Init.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Format selects the log line encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logging configuration.
type Config struct {
	Level  types.LogLevel
	Format Format
	Output io.Writer
}

// Init initializes the global logger. Safe to call multiple times; the
// most recent call wins.
func Init(cfg Config) {
	level := zerologLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.Format == FormatJSON {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}

	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

func zerologLevel(l types.LogLevel) zerolog.Level {
	switch l {
	case types.LogLevelTrace:
		return zerolog.TraceLevel
	case types.LogLevelDebug:
		return zerolog.DebugLevel
	case types.LogLevelWarn:
		return zerolog.WarnLevel
	case types.LogLevelError:
		return zerolog.ErrorLevel
	case types.LogLevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent creates a child logger tagged with the emitting component.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNodeID creates a child logger tagged with the agent's node ID.
func WithNodeID(nodeID string) zerolog.Logger {
	return Logger.With().Str("node_id", nodeID).Logger()
}
