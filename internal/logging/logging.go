// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/storekit-cloud/storekit/internal/config"
)

// Setup applies level and output settings to the global logger. When a log
// file is configured, output goes to both stdout and a size-rotated file.
func Setup(cfg config.LogConfig) error {
	level, errLevel := log.ParseLevel(cfg.Level)
	if errLevel != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	if errDir := os.MkdirAll(filepath.Dir(cfg.File), 0o755); errDir != nil {
		return errDir
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotated))
	return nil
}

func orDefault(v int, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
