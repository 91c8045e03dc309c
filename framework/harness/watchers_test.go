package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const haRegistrationLine = "2024-05-01 12:00:03.123 INFO (MainThread) [homeassistant.components.mqtt.discovery] " +
	"Found new component: sensor rika_stove_1_room_temperature"

func TestEntityExtractor(t *testing.T) {
	t.Run("extracts kind and id from a registration line", func(t *testing.T) {
		var set EntitySet
		e := newEntityExtractor(EntityLinePattern, &set, nil)
		e.HandleLine(haRegistrationLine)
		assert.Equal(t, []string{"sensor.rika_stove_1_room_temperature"}, set.Snapshot())
	})

	t.Run("ignores non-matching lines silently", func(t *testing.T) {
		var set EntitySet
		e := newEntityExtractor(EntityLinePattern, &set, nil)
		e.HandleLine("")
		e.HandleLine("INFO (MainThread) [homeassistant.bootstrap] Setting up stage 1")
		e.HandleLine("Found new component:")
		assert.Equal(t, 0, set.Len())
	})

	t.Run("duplicate registrations are collapsed", func(t *testing.T) {
		var set EntitySet
		e := newEntityExtractor(EntityLinePattern, &set, nil)
		e.HandleLine("Found new component: sensor rika_a")
		e.HandleLine("Found new component: sensor rika_b")
		e.HandleLine("Found new component: sensor rika_a")
		assert.Equal(t, []string{"sensor.rika_a", "sensor.rika_b"}, set.Snapshot())
	})

	t.Run("other component kinds are kept distinct", func(t *testing.T) {
		var set EntitySet
		e := newEntityExtractor(EntityLinePattern, &set, nil)
		e.HandleLine("Found new component: binary_sensor rika_stove_1_door")
		e.HandleLine("Found new component: sensor rika_stove_1_door")
		assert.Equal(t, []string{"binary_sensor.rika_stove_1_door", "sensor.rika_stove_1_door"}, set.Snapshot())
	})
}

func TestMessageRecorderStoresEveryLineVerbatim(t *testing.T) {
	var log MessageLog
	r := &messageRecorder{log: &log}
	r.HandleLine("rika-firenet/stove/state {\"status\":\"Heat\"}")
	r.HandleLine("rika-firenet/stove/state {\"status\":\"Heat\"}")
	r.HandleLine("homeassistant/status online")
	assert.Equal(t, []string{
		"rika-firenet/stove/state {\"status\":\"Heat\"}",
		"rika-firenet/stove/state {\"status\":\"Heat\"}",
		"homeassistant/status online",
	}, log.Snapshot())
}
