package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL value to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	level       atomic.Int32
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

func New() *Logger {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters routes debug/info to out and warn/error to errOut.
func NewWithWriters(out, errOut io.Writer) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	l := &Logger{
		infoLogger:  log.New(out, "INFO: ", flags),
		warnLogger:  log.New(errOut, "WARN: ", flags),
		errorLogger: log.New(errOut, "ERROR: ", flags),
		debugLogger: log.New(out, "DEBUG: ", flags),
	}
	l.level.Store(int32(LevelInfo))
	return l
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

// output writes one line when level is enabled. calldepth counts frames
// above output, so 3 reports whoever called the exported function.
func (l *Logger) output(calldepth int, target *log.Logger, level Level, format string, v ...interface{}) {
	if !l.enabled(level) {
		return
	}
	target.Output(calldepth, fmt.Sprintf(format, v...))
}

func (l *Logger) fatal(calldepth int, format string, v ...interface{}) {
	l.errorLogger.Output(calldepth, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.output(3, l.infoLogger, LevelInfo, format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.output(3, l.warnLogger, LevelWarn, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.output(3, l.errorLogger, LevelError, format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(3, l.debugLogger, LevelDebug, format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.fatal(3, format, v...)
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.output(3, GlobalLogger.infoLogger, LevelInfo, format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.output(3, GlobalLogger.warnLogger, LevelWarn, format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.output(3, GlobalLogger.errorLogger, LevelError, format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.output(3, GlobalLogger.debugLogger, LevelDebug, format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.fatal(3, format, v...)
}

func SetLevel(level Level) {
	GlobalLogger.SetLevel(level)
}
