// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// Output is either plain text (with the calling file and line) or one JSON object per line,
// selected by the logging.format setting.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel traces every state-machine resolution; very noisy on large batches.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel reports skipped trajectories and other recoverable conditions.
	WarnLevel
	// ErrorLevel reports per-file failures. The batch keeps going after these.
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Logger provides leveled logging
type Logger struct {
	mu     sync.Mutex
	level  Level
	json   bool
	out    io.Writer
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format
func Init(level string, format string) {
	initWithWriter(os.Stderr, level, format)
}

// SetOutput re-initializes the default logger to write to w. Intended for tests.
func SetOutput(w io.Writer, level string, format string) {
	initWithWriter(w, level, format)
}

func initWithWriter(w io.Writer, level, format string) {
	var l Level
	switch strings.ToLower(level) {
	case "debug":
		l = DebugLevel
	case "info":
		l = InfoLevel
	case "warn":
		l = WarnLevel
	case "error":
		l = ErrorLevel
	default:
		l = InfoLevel
	}

	isJSON := strings.ToLower(format) == "json"
	flags := log.LstdFlags | log.Lmicroseconds | log.Lshortfile
	if isJSON {
		flags = 0
	}

	defaultLogger = &Logger{
		level:  l,
		json:   isJSON,
		out:    w,
		logger: log.New(w, "", flags),
	}
}

type jsonLine struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func (lg *Logger) emit(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !lg.json {
		_ = lg.logger.Output(3, "["+level.String()+"] "+msg)
		return
	}

	b, err := json.Marshal(jsonLine{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: strings.ToLower(level.String()),
		Msg:   msg,
	})
	if err != nil {
		return
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	_, _ = lg.out.Write(append(b, '\n'))
}

func enabled(level Level) bool {
	return defaultLogger != nil && defaultLogger.level <= level
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	if enabled(DebugLevel) {
		defaultLogger.emit(DebugLevel, format, args...)
	}
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	if enabled(InfoLevel) {
		defaultLogger.emit(InfoLevel, format, args...)
	}
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	if enabled(WarnLevel) {
		defaultLogger.emit(WarnLevel, format, args...)
	}
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	if enabled(ErrorLevel) {
		defaultLogger.emit(ErrorLevel, format, args...)
	}
}

// Fatal logs a message at ErrorLevel and exits
func Fatal(format string, args ...interface{}) {
	if defaultLogger == nil {
		log.Fatalf("[FATAL] "+format, args...)
	}
	defaultLogger.emit(ErrorLevel, "FATAL: "+format, args...)
	os.Exit(1)
}
