// Package logging sets up the application log file and routes the
// OpenTelemetry logs of instrumented packages into it.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/koscakluka/ema-companion/internal/config"
	"go.opentelemetry.io/otel/log/global"
)

// Setup opens the configured log file and installs a global LoggerProvider
// writing to it. The returned func closes the file.
func Setup(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	if dir := filepath.Dir(cfg.File); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
		}
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	handler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})
	global.SetLoggerProvider(NewSlogProvider(handler))
	return slog.New(handler), func() { _ = file.Close() }, nil
}
