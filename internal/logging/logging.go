// Package logging builds the application logger: structured zap output to
// stderr teed into an append-only plaintext file. The file is what the help
// flow uploads to the backend, so it must stay readable and clearable.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AppLog couples the zap logger with its backing file.
type AppLog struct {
	*zap.Logger
	path string
	file *os.File
}

// New creates the application logger writing to stderr and the given file.
func New(path string) (*AppLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), zapcore.DebugLevel),
	)

	return &AppLog{Logger: zap.New(core), path: path, file: f}, nil
}

// Must panics when the logger cannot be created.
func Must(l *AppLog, err error) *AppLog {
	if err != nil {
		panic(err)
	}
	return l
}

// Path returns the log file location for upload.
func (l *AppLog) Path() string { return l.path }

// Read returns the current log file contents.
func (l *AppLog) Read() ([]byte, error) {
	_ = l.Sync()
	return os.ReadFile(l.path)
}

// Clear truncates the log file in place.
func (l *AppLog) Clear() error {
	_ = l.Sync()
	return os.Truncate(l.path, 0)
}

// Close syncs and releases the backing file.
func (l *AppLog) Close() error {
	_ = l.Sync()
	return l.file.Close()
}
