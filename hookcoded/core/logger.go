package core

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"

	"github.com/hookvibe/hookcode-sub000/internals/assert"
	"github.com/hookvibe/hookcode-sub000/internals/conf"
)

// InitLogger logs to stdout and to the daemon log file under the data dir.
// The returned file must be closed by the caller.
func InitLogger(config *conf.Config) (*slog.Logger, *os.File) {
	logPath := config.LogPath()
	err := os.MkdirAll(filepath.Dir(logPath), 0o755)
	assert.AssertNil(err, "[CORE] Failed to initialize log directory")
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	assert.AssertNil(err, "[CORE] Failed to open log file")
	logger := NewLogger(io.MultiWriter(os.Stdout, logFile), slog.LevelDebug)

	slog.SetDefault(logger)
	return logger, logFile
}

func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:     level,
		AddSource: true,
		NoColor:   true,
	})
	return slog.New(handler)
}
