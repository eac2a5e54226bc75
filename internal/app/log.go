package app

import (
	"log/slog"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xinggaoya/websess/internal/config"
)

// LogFile returns the keeper's log file path inside the data directory.
func LogFile(cfg *config.Config) string {
	return filepath.Join(cfg.DataDirectory, "websess.log")
}

// SetupLogging routes slog to a rotated file in the data directory. Debug
// mode lowers the level and adds source positions.
func SetupLogging(cfg *config.Config) {
	out := &lumberjack.Logger{
		Filename:   LogFile(cfg),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}

	level := slog.LevelInfo
	if cfg.Options.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Options.Debug,
	})))
}
