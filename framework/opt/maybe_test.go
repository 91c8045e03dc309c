package opt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stringerValue struct{}

func (s stringerValue) String() string { return "stringered" }

func TestMaybe(t *testing.T) {
	t.Run("Some", func(t *testing.T) {
		m := Some(3)
		assert.True(t, m.IsDefined())
		assert.Equal(t, 3, m.Value())
		assert.Equal(t, 3, m.OrElse(4))
	})

	t.Run("None", func(t *testing.T) {
		m := None[int]()
		assert.False(t, m.IsDefined())
		assert.Equal(t, 0, m.Value())
		assert.Equal(t, 4, m.OrElse(4))
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "3", Some(3).String())
		assert.Equal(t, "[none]", None[int]().String())
		assert.Equal(t, "stringered", Some(stringerValue{}).String())
		assert.Equal(t, "[none]", fmt.Sprintf("%s", None[stringerValue]()))
	})
}
