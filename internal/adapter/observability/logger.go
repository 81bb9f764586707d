package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/saifu/pricing-pipeline/internal/config"
)

// SetupLogger builds the process logger from the YAML logging section.
// Location is "stdout", "stderr" or a file path opened for append; format
// is "json" (default) or "text"; "fatal" maps to the error level since
// slog has no fatal.
func SetupLogger(cfg config.Logging) (*slog.Logger, error) {
	var w io.Writer
	switch cfg.Location {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Location, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("op=observability.SetupLogger: open %s: %w", cfg.Location, err)
		}
		w = f
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(h)
	if cfg.Category != "" {
		logger = logger.With(slog.String("service", cfg.Category))
	}
	return logger, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
