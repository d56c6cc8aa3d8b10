// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"ifrs9-ecl/internal/config"
)

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(config.Default().Log)
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
// Console output goes to stderr so that report output on stdout stays
// machine-readable.
func NewLoggerWithConfig(cfg config.LogConfig) zerolog.Logger {
	var writers []io.Writer

	// Console writer
	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithExposure adds an exposure id to the logger context.
func WithExposure(logger zerolog.Logger, exposureID string) zerolog.Logger {
	return logger.With().Str("item_id", exposureID).Logger()
}

// WithScenario adds a scenario name to the logger context.
func WithScenario(logger zerolog.Logger, scenario string) zerolog.Logger {
	return logger.With().Str("scenario", scenario).Logger()
}

// WithComponent adds a component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogStageMigration logs a stage change for one exposure.
func LogStageMigration(logger zerolog.Logger, exposureID, from, to string) {
	logger.Info().
		Str("event", "stage_migration").
		Str("item_id", exposureID).
		Str("from_stage", from).
		Str("to_stage", to).
		Msg("Stage migration")
}

// LogPortfolioRun logs the headline figures of a portfolio calculation.
func LogPortfolioRun(logger zerolog.Logger, scenario string, items, failed int, totalECL, totalExposure string, coverage float64, duration time.Duration) {
	logger.Info().
		Str("event", "portfolio_run").
		Str("scenario", scenario).
		Int("items", items).
		Int("failed", failed).
		Str("total_ecl", totalECL).
		Str("total_exposure", totalExposure).
		Float64("coverage_ratio", coverage).
		Dur("duration", duration).
		Msg("Portfolio ECL calculated")
}

// LogItemFailure logs a skipped exposure.
func LogItemFailure(logger zerolog.Logger, exposureID string, err error) {
	l := WithExposure(logger, exposureID)
	l.Error().
		Str("event", "item_failure").
		Err(err).
		Msg("Failed to calculate ECL for item")
}
