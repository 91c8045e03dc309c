package harness

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultWaitTimeout applies to wait conditions whose descriptor does not set
// an explicit timeout.
const DefaultWaitTimeout = time.Minute

// WaitStrategy is a readiness predicate over a service's live log output: a
// pattern (literal substring or regular expression matched against single
// lines) plus a timeout. It is stateless; evaluation state lives in the
// waitEvaluator attached to a stream.
type WaitStrategy struct {
	literal string
	pattern *regexp.Regexp
	timeout time.Duration
}

// WaitForLogLine waits until a log line containing the given substring appears.
func WaitForLogLine(substring string, timeout time.Duration) WaitStrategy {
	return WaitStrategy{literal: substring, timeout: timeout}
}

// WaitForLogPattern waits until a log line matching the given expression
// appears. The expression is applied to one line at a time, never across lines.
func WaitForLogPattern(pattern *regexp.Regexp, timeout time.Duration) WaitStrategy {
	return WaitStrategy{pattern: pattern, timeout: timeout}
}

// Timeout returns how long a service may take to satisfy the condition before
// startup is considered failed.
func (w WaitStrategy) Timeout() time.Duration {
	if w.timeout <= 0 {
		return DefaultWaitTimeout
	}
	return w.timeout
}

// Matches tests a single trimmed log line against the condition.
func (w WaitStrategy) Matches(line string) bool {
	if w.pattern != nil {
		return w.pattern.MatchString(line)
	}
	return w.literal != "" && strings.Contains(line, w.literal)
}

func (w WaitStrategy) String() string {
	if w.pattern != nil {
		return fmt.Sprintf("log line matching %q", w.pattern.String())
	}
	return fmt.Sprintf("log line containing %q", w.literal)
}

// waitEvaluator applies a WaitStrategy incrementally to a line stream.
// Readiness is latched: after the first match, subsequent lines are irrelevant
// to it (they may still feed other subscribers of the same stream).
type waitEvaluator struct {
	strategy WaitStrategy
	ready    chan struct{}
	once     sync.Once
}

func newWaitEvaluator(strategy WaitStrategy) *waitEvaluator {
	return &waitEvaluator{strategy: strategy, ready: make(chan struct{})}
}

// HandleLine is a LineHandler; it closes the Ready channel on the first match.
func (e *waitEvaluator) HandleLine(line string) {
	if e.strategy.Matches(line) {
		e.once.Do(func() { close(e.ready) })
	}
}

// Ready is closed once the strategy has been satisfied.
func (e *waitEvaluator) Ready() <-chan struct{} { return e.ready }
