// Package applog provides the leveled logger used throughout the server.
package applog

import (
	"log"
	"os"
)

// Logger wraps stdlib log.Logger with Info/Warn/Error levels, each
// prefixed and written to stderr.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
}

// Default is the process-wide logger instance.
var Default = New()

// New builds a Logger writing to stderr.
func New() *Logger {
	return &Logger{
		info:  log.New(os.Stderr, "[INFO]  ", log.Ldate|log.Ltime),
		warn:  log.New(os.Stderr, "[WARN]  ", log.Ldate|log.Ltime),
		error: log.New(os.Stderr, "[ERROR] ", log.Ldate|log.Ltime),
	}
}

func (l *Logger) Info(format string, v ...any)  { l.info.Printf(format, v...) }
func (l *Logger) Warn(format string, v ...any)  { l.warn.Printf(format, v...) }
func (l *Logger) Error(format string, v ...any) { l.error.Printf(format, v...) }

func Info(format string, v ...any)  { Default.Info(format, v...) }
func Warn(format string, v ...any)  { Default.Warn(format, v...) }
func Error(format string, v ...any) { Default.Error(format, v...) }
