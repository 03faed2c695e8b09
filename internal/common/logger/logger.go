package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Level represents the logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelQuiet // No output
)

var zerologLevels = map[Level]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
	LevelQuiet: zerolog.Disabled,
}

// Logger handles application logging. Console output is human readable,
// the optional log file receives one JSON object per line.
type Logger struct {
	level      Level
	output     io.Writer
	fileOutput *os.File
	fields     map[string]string
	sink       io.Writer
	zl         zerolog.Logger
	mu         sync.Mutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the default logger instance
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr)
	})
	return defaultLogger
}

// New creates a logger writing to w at info level
func New(w io.Writer) *Logger {
	l := &Logger{
		level:  LevelInfo,
		output: w,
	}
	l.buildSink()
	l.rebuild()
	return l
}

// buildSink creates the synchronized writer shared by l and every child
// derived from it afterwards. Caller must hold mu or own l exclusively.
func (l *Logger) buildSink() {
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        l.output,
		NoColor:    !isTerminal(l.output),
		TimeFormat: "15:04:05",
	}}
	if l.fileOutput != nil {
		writers = append(writers, l.fileOutput)
	}
	l.sink = zerolog.SyncWriter(zerolog.MultiLevelWriter(writers...))
}

// rebuild recreates the zerolog logger on top of the sink. Caller must hold mu or own l exclusively.
func (l *Logger) rebuild() {
	ctx := zerolog.New(l.sink).
		Level(zerologLevels[l.level]).
		With().
		Timestamp()
	for k, v := range l.fields {
		ctx = ctx.Str(k, v)
	}
	l.zl = ctx.Logger()
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.rebuild()
}

// SetVerbose enables debug output
func (l *Logger) SetVerbose(verbose bool) {
	if verbose {
		l.SetLevel(LevelDebug)
	}
}

// SetQuiet disables all output except errors
func (l *Logger) SetQuiet(quiet bool) {
	if quiet {
		l.SetLevel(LevelError)
	}
}

// EnableFileLogging enables logging to a file
func (l *Logger) EnableFileLogging() error {
	logDir, err := LogDir()
	if err != nil {
		return err
	}
	return l.EnableFileLoggingAt(logDir)
}

// EnableFileLoggingAt enables logging to alpa-autoupdate.log inside logDir
func (l *Logger) EnableFileLoggingAt(logDir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, "alpa-autoupdate.log")
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.fileOutput = f
	l.buildSink()
	l.rebuild()
	return nil
}

// Close closes the log file if open
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileOutput != nil {
		l.fileOutput.Close()
		l.fileOutput = nil
		l.buildSink()
		l.rebuild()
	}
}

// LogDir returns the log directory path
func LogDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	xdgState := os.Getenv("XDG_STATE_HOME")
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}

	return filepath.Join(xdgState, "alpa-autoupdate", "logs"), nil
}

// WithPackage returns a child logger that tags every line with the package
// name. The child writes through its parent's synchronized sink but does not
// follow later level changes.
func (l *Logger) WithPackage(pkg string) *Logger {
	return l.With("package", pkg)
}

// With returns a child logger carrying an extra string field
func (l *Logger) With(key, value string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := make(map[string]string, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value

	child := &Logger{
		level:      l.level,
		output:     l.output,
		fileOutput: l.fileOutput,
		fields:     fields,
		sink:       l.sink,
	}
	child.rebuild()
	return child
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	zl := l.zl
	l.mu.Unlock()

	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = zl.Debug()
	case LevelInfo:
		ev = zl.Info()
	case LevelWarn:
		ev = zl.Warn()
	default:
		ev = zl.Error()
	}
	ev.Msgf(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// Package-level convenience functions
func Debug(format string, args ...interface{}) { Default().Debug(format, args...) }
func Info(format string, args ...interface{})  { Default().Info(format, args...) }
func Warn(format string, args ...interface{})  { Default().Warn(format, args...) }
func Error(format string, args ...interface{}) { Default().Error(format, args...) }
func SetVerbose(v bool)                        { Default().SetVerbose(v) }
func SetQuiet(q bool)                          { Default().SetQuiet(q) }
func WithPackage(pkg string) *Logger           { return Default().WithPackage(pkg) }
