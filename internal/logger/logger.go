package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/freelancer-expense-classifier/internal/config"
)

// NewLogger builds the process-wide slog.Logger: JSON output on stdout, level
// from config, source locations attached when running at debug
func NewLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})

	logger := slog.New(handler).With(
		"app", cfg.Application.Name,
		"env", cfg.Application.Env,
	)
	logger.Info("logger initialized", "level", level)

	return logger
}
