package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	// nil installs a no-op logger
	SetLogger(nil)
	Logf("test message")
}

func TestComponentPrefixesLines(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	logf := Component("watchdog")
	logf("state %s after %dms", "degraded", 600)

	assert.Equal(t, []string{"[watchdog] state degraded after 600ms"}, lines)
}

func TestComponentFollowsLaterSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	logf := Component("relay")

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	logf("sent %d", 1)

	assert.Equal(t, "[relay] sent 1", got)
}
