// Package logging builds the process zerolog logger from LoggingConfig.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quickchat/internal/config"
)

// Setup configures the global zerolog logger and returns it.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to parse log level: %w", err)
	}

	output, err := openOutput(cfg.OutputPath)
	if err != nil {
		return zerolog.Nop(), err
	}

	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger()

	return log.Logger, nil
}

func openOutput(path string) (io.Writer, error) {
	switch path {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}
