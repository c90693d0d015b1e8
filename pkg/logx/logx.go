// Package logx provides structured logging with component prefixes and an
// in-memory buffer of recent entries for the progress API.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Logger struct {
	component string
	logger    *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// LogEntry is one buffered log line, served by the HTTP API.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// debugConfig controls debug logging, initialized from the environment:
//
//	DEBUG=1                              enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=pipeline,parser  enable debug for listed domains
type debugSettings struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

//nolint:gochecknoglobals // Package-level logging state, guarded by mutex
var (
	debugConfig = &debugSettings{}
	debugMu     sync.RWMutex

	logBuffer = &ringBuffer{maxSize: 1000}
)

//nolint:gochecknoinits // Env var initialization must run before first log call
func init() {
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(d)] = true
		}
	}
}

// ringBuffer keeps the most recent maxSize entries.
type ringBuffer struct {
	entries []LogEntry
	mu      sync.RWMutex
	maxSize int
}

func (b *ringBuffer) add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

func (b *ringBuffer) recent(component string, since time.Time) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	filtered := make([]LogEntry, 0, len(b.entries))
	for i := range b.entries {
		entry := &b.entries[i]
		if component != "" && !strings.EqualFold(entry.Component, component) {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse("2006-01-02T15:04:05.000Z", entry.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		filtered = append(filtered, *entry)
	}
	return filtered
}

// RecentEntries returns buffered log entries, optionally filtered by
// component and timestamp.
func RecentEntries(component string, since time.Time) []LogEntry {
	return logBuffer.recent(component, since)
}

func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr keeps stdout clean for CLI use
	}
}

// SetDebug enables or disables debug logging for the listed domains
// (empty list = all domains).
func SetDebug(enabled bool, domains ...string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugConfig.Enabled = enabled
	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, d := range domains {
		debugConfig.Domains[strings.TrimSpace(d)] = true
	}
}

// DebugEnabledFor reports whether debug logging is enabled for a domain.
func DebugEnabledFor(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)

	logBuffer.add(LogEntry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
}

func (l *Logger) Debug(format string, args ...any) {
	if !DebugEnabledFor(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func (l *Logger) Component() string {
	return l.component
}

// Global logging functions for convenience.
var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use this when you need both logging and error returning:
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logx.Wrap(err, "db connect") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
