package harness

import (
	"regexp"

	"github.com/hass-mqtt-bridge/platform-harness/framework"
)

// EntityLinePattern matches the log line Home Assistant emits when an MQTT
// discovery payload introduces a component it has not seen before:
//
//	Found new component: sensor rika_stove_1_room_temperature
//
// The first group is the component kind, the second the object id; the stored
// identifier is "<kind>.<id>". This coupling to the platform's log format is
// deliberate and must be updated in lockstep with it.
var EntityLinePattern = regexp.MustCompile(`Found new component: ([a-z_]+) ([A-Za-z0-9_]+)`)

// entityExtractor is the persistent watcher rule for the platform service: it
// scrapes registration lines and accumulates distinct entity identifiers.
// Lines that don't match are normal traffic, not errors.
type entityExtractor struct {
	pattern *regexp.Regexp
	set     *EntitySet
	logger  framework.Logger
}

func newEntityExtractor(pattern *regexp.Regexp, set *EntitySet, logger framework.Logger) *entityExtractor {
	if logger == nil {
		logger = framework.NullLogger()
	}
	return &entityExtractor{pattern: pattern, set: set, logger: logger}
}

// HandleLine is a LineHandler.
func (e *entityExtractor) HandleLine(line string) {
	m := e.pattern.FindStringSubmatch(line)
	if m == nil {
		return
	}
	id := m[1] + "." + m[2]
	if e.set.Add(id) {
		e.logger.Printf("registered entity %s", id)
	}
}

// messageRecorder is the persistent watcher rule for the observer service: it
// stores every line verbatim, duplicates included.
type messageRecorder struct {
	log *MessageLog
}

// HandleLine is a LineHandler.
func (r *messageRecorder) HandleLine(line string) {
	r.log.Append(line)
}
