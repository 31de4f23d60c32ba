// Package logger provides logging implementations for userdesk
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/memtensor/userdesk/pkg/interfaces"
)

// Level orders log severities
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a level name to a Level; unknown names map to info
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// String returns the upper-case level tag
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// FieldLogger writes leveled entries with key=value fields
type FieldLogger struct {
	level  Level
	out    *log.Logger
	fields map[string]interface{}
}

// New creates a logger writing to w at the given level
func New(w io.Writer, level string) *FieldLogger {
	return &FieldLogger{
		level: ParseLevel(level),
		out:   log.New(w, "", log.LstdFlags),
	}
}

// Debug logs debug level messages
func (l *FieldLogger) Debug(msg string, fields ...map[string]interface{}) {
	l.logWithFields(LevelDebug, msg, fields...)
}

// Info logs info level messages
func (l *FieldLogger) Info(msg string, fields ...map[string]interface{}) {
	l.logWithFields(LevelInfo, msg, fields...)
}

// Warn logs warning level messages
func (l *FieldLogger) Warn(msg string, fields ...map[string]interface{}) {
	l.logWithFields(LevelWarn, msg, fields...)
}

// Error logs error level messages
func (l *FieldLogger) Error(msg string, err error, fields ...map[string]interface{}) {
	var allFields []map[string]interface{}
	if err != nil {
		allFields = append(allFields, map[string]interface{}{"error": err.Error()})
	}
	allFields = append(allFields, fields...)
	l.logWithFields(LevelError, msg, allFields...)
}

// WithFields returns a logger with additional fields
func (l *FieldLogger) WithFields(fields map[string]interface{}) interfaces.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &FieldLogger{level: l.level, out: l.out, fields: merged}
}

func (l *FieldLogger) logWithFields(level Level, msg string, fields ...map[string]interface{}) {
	if level < l.level {
		return
	}

	all := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for _, fieldMap := range fields {
		for k, v := range fieldMap {
			all[k] = v
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)

	// stable key order keeps entries diffable
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}

	l.out.Println(b.String())
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(level string) interfaces.Logger {
	return New(os.Stderr, level)
}

// NewFileLogger creates a logger appending to path. The returned closer
// releases the file.
func NewFileLogger(path, level string) (interfaces.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, level), f, nil
}

// NewTestLogger creates a logger for testing
func NewTestLogger() interfaces.Logger {
	return New(io.Discard, "debug")
}

// NewLogger creates a new logger with default settings
func NewLogger() interfaces.Logger {
	return New(os.Stderr, "info")
}

var _ interfaces.Logger = (*FieldLogger)(nil)
