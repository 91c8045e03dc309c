package harness

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// LineHandler consumes one trimmed log line. Handlers are invoked synchronously
// and in arrival order relative to the stream they are subscribed to; a handler
// must not block.
type LineHandler func(line string)

const maxLineLength = 1024 * 1024

// lineBroadcaster splits one service's continuous output into lines, trims
// trailing line terminators and whitespace, and delivers each line to every
// subscribed handler. There is one broadcaster per service, fed by a single
// goroutine, so handlers on the same stream never run concurrently with each
// other. No ordering holds between lines of different services' streams.
type lineBroadcaster struct {
	service  string
	handlers []LineHandler
	lock     sync.Mutex
	done     chan struct{}
}

func newLineBroadcaster(service string) *lineBroadcaster {
	return &lineBroadcaster{service: service, done: make(chan struct{})}
}

// Subscribe registers a handler for all subsequent lines. To guarantee that no
// line is missed, subscription must happen before the stream source is started;
// the stack subscribes all watchers before starting the container.
func (b *lineBroadcaster) Subscribe(handler LineHandler) {
	b.lock.Lock()
	b.handlers = append(b.handlers, handler)
	b.lock.Unlock()
}

// Run reads the stream until EOF or error, dispatching each line. It blocks;
// the stack runs it on a dedicated goroutine per service.
func (b *lineBroadcaster) Run(r io.Reader) {
	defer close(b.done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		b.dispatch(strings.TrimRight(scanner.Text(), " \t\r\n"))
	}
	// A scanner error here is almost always the stream being closed during
	// teardown, which is not worth reporting.
}

func (b *lineBroadcaster) dispatch(line string) {
	b.lock.Lock()
	handlers := append([]LineHandler(nil), b.handlers...)
	b.lock.Unlock()
	for _, h := range handlers {
		h(line)
	}
}

// Done is closed when the stream has ended.
func (b *lineBroadcaster) Done() <-chan struct{} { return b.done }
