package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for worker output capture files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes output capture destinations for one worker.
// If StdoutPath/StderrPath are empty and Dir is set, files will be
// Dir/worker-<owner>.stdout.log and Dir/worker-<owner>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Dir        string `json:"dir" toml:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout_path,omitempty" toml:"stdout_path" mapstructure:"stdout_path"`
	StderrPath string `json:"stderr_path,omitempty" toml:"stderr_path" mapstructure:"stderr_path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups,omitempty" toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days,omitempty" toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress,omitempty" toml:"compress" mapstructure:"compress"`
}

// Writers returns rotating io.WriteClosers for the worker's stdout and stderr.
func (c Config) Writers(owner int64) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("worker-%d.stdout.log", owner))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("worker-%d.stderr.log", owner))
	}
	var outW io.WriteCloser
	var errW io.WriteCloser
	if stdout != "" {
		outW = &lj.Logger{
			Filename:   stdout,
			MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.Compress,
		}
	}
	if stderr != "" {
		errW = &lj.Logger{
			Filename:   stderr,
			MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.Compress,
		}
	}
	return outW, errW, nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// NewDaemonLogger returns the slog logger used by the daemon console.
// level accepts "debug", "info", "warn", "error" (default info).
func NewDaemonLogger(level string, color bool) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lv}
	if color {
		return slog.New(NewColorTextHandler(os.Stderr, opts, true))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
