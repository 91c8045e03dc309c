package harness

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAlreadyRunning is returned by Stack.Up when an environment is already
// active. Starting a second stack on top of a running one is always a mistake
// in test setup, so it is surfaced immediately instead of being tolerated.
var ErrAlreadyRunning = errors.New("environment is already running")

// StartupTimeoutError is returned by Stack.Up when a service did not satisfy
// its wait condition within its configured window. By the time the caller sees
// it, the partially-started environment has already been torn down.
type StartupTimeoutError struct {
	// Service is the name of the service that failed to become ready.
	Service string

	// Elapsed is how long the harness waited for the service.
	Elapsed time.Duration

	// LastOutput holds the most recent log lines seen from the service, for
	// diagnosing why the readiness line never appeared.
	LastOutput []string
}

func (e *StartupTimeoutError) Error() string {
	msg := fmt.Sprintf("service %q did not become ready within %s", e.Service, e.Elapsed.Round(time.Millisecond))
	if len(e.LastOutput) > 0 {
		msg += "; last output:\n  " + strings.Join(e.LastOutput, "\n  ")
	}
	return msg
}
