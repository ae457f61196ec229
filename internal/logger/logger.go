package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where the output of a launched application goes.
// If StdoutPath/StderrPath are empty and Dir is set, files are
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
type Config struct {
	Dir        string
	StdoutPath string
	StderrPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writers returns rotating writers for stdout and stderr of the named
// application. Either is nil when not configured.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = rotating(stdout, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays, c.Compress)
	}
	if stderr != "" {
		errW = rotating(stderr, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays, c.Compress)
	}
	return outW, errW, nil
}

// Settings configures the logger of the appconnect process itself.
type Settings struct {
	Level      string // debug, info, warn, error
	Format     string // text, json, color
	File       string // empty means stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writer returns the log destination. A file destination rotates.
func (s Settings) Writer() io.Writer {
	if s.File == "" {
		return os.Stderr
	}
	_ = os.MkdirAll(filepath.Dir(s.File), 0o750)
	return rotating(s.File, s.MaxSizeMB, s.MaxBackups, s.MaxAgeDays, s.Compress)
}

// New builds a slog.Logger writing to s.Writer().
func New(s Settings) *slog.Logger {
	return NewWithWriter(s, s.Writer())
}

func NewWithWriter(s Settings, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(s.Level)}
	var h slog.Handler
	switch strings.ToLower(s.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "color":
		h = NewColorTextHandler(w, opts, true)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to slog.Level; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func rotating(path string, size, backups, age int, compress bool) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(size, DefaultMaxSizeMB),
		MaxBackups: valOr(backups, DefaultMaxBackups),
		MaxAge:     valOr(age, DefaultMaxAgeDays),
		Compress:   compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
