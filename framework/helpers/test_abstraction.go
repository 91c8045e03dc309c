package helpers

import "fmt"

// TestContext is a minimal interface for types like *testing.T representing a
// test that can fail. Functions can use this to avoid a direct dependency on
// the testing package.
type TestContext interface {
	Errorf(msgFormat string, msgArgs ...interface{})
	FailNow()
	Helper()
}

// TestRecorder is a TestContext implementation that just records failures, for
// testing our own assertion helpers.
type TestRecorder struct {
	Errors     []string
	Terminated bool
}

func (t *TestRecorder) Errorf(msgFormat string, msgArgs ...interface{}) {
	t.Errors = append(t.Errors, fmt.Sprintf(msgFormat, msgArgs...))
}

func (t *TestRecorder) FailNow() {
	t.Terminated = true
}

func (t *TestRecorder) Helper() {}
