package helpers

import (
	"context"
	"fmt"
	"time"
)

// PollTimeoutError is returned by Poll when the condition was not satisfied
// within the timeout. It carries the caller's diagnostic message and the last
// value the producer returned, so a failed assertion is actionable without
// re-running with extra logging.
type PollTimeoutError struct {
	Message   string
	LastValue string
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s (last value: %s)", e.Message, e.LastValue)
}

// Poll calls producer immediately and then once per interval until condition
// returns true for the produced value, the timeout elapses, or ctx is canceled.
// On success it returns the satisfying value. On timeout it returns the last
// observed value along with a *PollTimeoutError describing it.
//
// The interval is respected between evaluations (no busy loop), and both timers
// are released before returning.
func Poll[V any](
	ctx context.Context,
	producer func() V,
	condition func(V) bool,
	interval time.Duration,
	timeout time.Duration,
	message string,
) (V, error) {
	last := producer()
	if condition(last) {
		return last, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			return last, &PollTimeoutError{Message: message, LastValue: fmt.Sprintf("%v", last)}
		case <-ticker.C:
			last = producer()
			if condition(last) {
				return last, nil
			}
		}
	}
}

// AssertEventually is equivalent to assert.Eventually from stretchr/testify/assert,
// except that it evaluates the condition on the calling goroutine. It calls testFn
// repeatedly at intervals until it gets a true value; if the timeout elapses, the
// test fails.
func AssertEventually(
	t TestContext,
	testFn func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) bool {
	t.Helper()
	_, err := Poll(context.Background(), testFn, func(ok bool) bool { return ok }, interval, timeout, "condition")
	if err == nil {
		return true
	}
	t.Errorf(failureMsgFormat, failureMsgArgs...)
	return false
}

// RequireEventually is the same as AssertEventually, except that on timeout the
// test fails and immediately exits.
func RequireEventually(
	t TestContext,
	testFn func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) {
	t.Helper()
	if !AssertEventually(t, testFn, timeout, interval, failureMsgFormat, failureMsgArgs...) {
		t.FailNow()
	}
}
