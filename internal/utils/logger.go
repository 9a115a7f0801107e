// Package utils holds the small ambient helpers (logging, id generation)
// shared by the core packages. None of it is part of the
// language surface; it is plumbing.
package utils

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[LogLevel]string{
	DEBUG: "\033[36m",
	INFO:  "\033[32m",
	WARN:  "\033[33m",
	ERROR: "\033[31m",
	FATAL: "\033[35m",
}

const colorReset = "\033[0m"

// Logger provides structured, component-tagged logging.
type Logger struct {
	mu         sync.Mutex
	level      LogLevel
	component  string
	output     io.Writer
	colorize   bool
	showCaller bool
	timeFormat string
}

// Config configures a logger instance.
type Config struct {
	Level      LogLevel
	Component  string
	Output     io.Writer
	Colorize   bool
	ShowCaller bool
	TimeFormat string
}

// New creates a new logger with the given configuration.
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.TimeFormat == "" {
		config.TimeFormat = "15:04:05.000"
	}

	return &Logger{
		level:      config.Level,
		component:  config.Component,
		output:     config.Output,
		colorize:   config.Colorize,
		showCaller: config.ShowCaller,
		timeFormat: config.TimeFormat,
	}
}

// DefaultLogger creates a logger with sensible defaults for the given
// component name (e.g. "sched", "actor", "fiber").
func DefaultLogger(component string) *Logger {
	return New(Config{
		Level:     INFO,
		Component: component,
		Output:    os.Stdout,
		Colorize:  true,
	})
}

// With returns a logger tagged with a sub-component suffix, e.g.
// log.With("worker-3").
func (l *Logger) With(sub string) *Logger {
	component := l.component
	if sub != "" {
		if component != "" {
			component = component + "." + sub
		} else {
			component = sub
		}
	}
	return &Logger{
		level:      l.level,
		component:  component,
		output:     l.output,
		colorize:   l.colorize,
		showCaller: l.showCaller,
		timeFormat: l.timeFormat,
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields...) }

func (l *Logger) Fatal(msg string, fields ...Field) {
	l.log(FATAL, msg, fields...)
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var b strings.Builder
	if l.colorize {
		b.WriteString(levelColors[level])
	}

	b.WriteString("[")
	b.WriteString(time.Now().Format(l.timeFormat))
	b.WriteString("] [")
	b.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	b.WriteString("] ")

	if l.component != "" {
		b.WriteString("[")
		b.WriteString(l.component)
		b.WriteString("] ")
	}

	b.WriteString(msg)

	if len(fields) > 0 {
		b.WriteString(" ")
		for i, f := range fields {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(f.Key)
			b.WriteString("=")
			b.WriteString(f.format())
		}
	}

	if l.showCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			parts := strings.Split(file, "/")
			b.WriteString(fmt.Sprintf(" (%s:%d)", parts[len(parts)-1], line))
		}
	}

	if l.colorize {
		b.WriteString(colorReset)
	}
	b.WriteString("\n")

	_, _ = l.output.Write([]byte(b.String()))
}

// Field is a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) format() string {
	switch v := f.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func Str(key, value string) Field           { return Field{Key: key, Value: value} }
func Int(key string, value int) Field       { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field   { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field     { return Field{Key: key, Value: value} }
func Err(err error) Field                   { return Field{Key: "error", Value: err} }
func Dur(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }
