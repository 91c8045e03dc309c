package harness

import (
	"regexp"
	"sync"
)

// EntitySet is an insertion-ordered set of entity identifiers. Duplicates are
// ignored, so iteration order is first-seen order. It is written only by the
// entity watcher's line callback and read by tests and polling assertions, so
// all reads return snapshots.
type EntitySet struct {
	order []string
	seen  map[string]bool
	lock  sync.Mutex
}

// Add appends the identifier if it has not been seen before. It returns true
// if the identifier was newly added.
func (s *EntitySet) Add(id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.seen[id] {
		return false
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	s.seen[id] = true
	s.order = append(s.order, id)
	return true
}

// Len returns the number of distinct identifiers.
func (s *EntitySet) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.order)
}

// Snapshot returns a copy of the identifiers in first-seen order. The caller
// may iterate or mutate the result freely while the watcher keeps appending.
func (s *EntitySet) Snapshot() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.order...)
}

// CountMatching returns how many identifiers match the pattern.
func (s *EntitySet) CountMatching(pattern *regexp.Regexp) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := 0
	for _, id := range s.order {
		if pattern.MatchString(id) {
			n++
		}
	}
	return n
}

// Reset empties the set. Only Stack.Down calls this.
func (s *EntitySet) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.order = nil
	s.seen = nil
}

// MessageLog is an ordered, non-deduplicated sequence of raw log lines from
// one service. Repeated identical lines are repeated entries. Same ownership
// rules as EntitySet: one writer, snapshot reads, reset only on teardown.
type MessageLog struct {
	lines []string
	lock  sync.Mutex
}

// Append stores a line verbatim at the end of the log.
func (l *MessageLog) Append(line string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.lines = append(l.lines, line)
}

// Len returns the number of stored lines.
func (l *MessageLog) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.lines)
}

// Snapshot returns a copy of the lines in arrival order.
func (l *MessageLog) Snapshot() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.lines...)
}

// Reset empties the log. Only Stack.Down calls this.
func (l *MessageLog) Reset() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.lines = nil
}
