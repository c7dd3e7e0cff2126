package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "device_registry.dev-1", DeviceRegistry("dev-1"))
	assert.Equal(t, "device_links.dev-1", DeviceLink("dev-1"))
	assert.Equal(t, "users.u1.displays.d1.status", DisplayStatus("u1", "d1"))
	assert.Equal(t, "users.u1.displays.*.status", AllDisplayStatuses("u1"))
	assert.Equal(t, "users.u1.displays.d1.commands.c1", Command("u1", "d1", "c1"))
	assert.Equal(t, "users.u1.displays.d1.commands.*", AllCommands("u1", "d1"))
}

func TestDisplayIDFromStatusKey(t *testing.T) {
	id, ok := DisplayIDFromStatusKey("users.u1.displays.d1.status")
	assert.True(t, ok)
	assert.Equal(t, "d1", id)

	_, ok = DisplayIDFromStatusKey("users.u1.displays.d1.commands.c1")
	assert.False(t, ok)

	_, ok = DisplayIDFromStatusKey("device_registry.dev-1")
	assert.False(t, ok)
}

func TestCommandIDFromKey(t *testing.T) {
	id, ok := CommandIDFromKey("users.u1.displays.d1.commands.c1")
	assert.True(t, ok)
	assert.Equal(t, "c1", id)

	_, ok = CommandIDFromKey("users.u1.displays.d1.status")
	assert.False(t, ok)
}
