package framework

import (
	"fmt"
	"strings"
	"sync"
)

// Logger is a minimal logging interface satisfied by *log.Logger, so callers can
// provide a standard logger, a prefixed wrapper, or no logging at all.
type Logger interface {
	Println(args ...interface{})
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Println(args ...interface{})                {}
func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

type prefixedLogger struct {
	base   Logger
	prefix string
}

// LoggerWithPrefix decorates a Logger so every message is preceded by the given
// prefix. The harness uses this to tag each service's echoed output.
func LoggerWithPrefix(baseLogger Logger, prefix string) Logger {
	return prefixedLogger{baseLogger, prefix}
}

func (p prefixedLogger) Println(args ...interface{}) {
	p.base.Println(append([]interface{}{p.prefix}, args...)...)
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.base.Printf(p.prefix+message, args...)
}

// TailLogger retains the most recent messages it receives, up to a fixed limit.
// The harness keeps one per service so that a startup failure can report what
// the service last printed.
type TailLogger struct {
	limit int
	lines []string
	lock  sync.Mutex
}

// NewTailLogger creates a TailLogger that keeps at most limit messages.
func NewTailLogger(limit int) *TailLogger {
	return &TailLogger{limit: limit}
}

func (l *TailLogger) Println(args ...interface{}) {
	l.append(strings.TrimRight(fmt.Sprintln(args...), "\r\n")) // Sprintln appends a newline
}

func (l *TailLogger) Printf(message string, args ...interface{}) {
	l.append(fmt.Sprintf(message, args...))
}

func (l *TailLogger) append(line string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.lines = append(l.lines, line)
	if len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
}

// Tail returns a copy of the retained messages, oldest first.
func (l *TailLogger) Tail() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.lines...)
}
