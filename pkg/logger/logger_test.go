package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	log, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "shouting"})
	assert.Error(t, err)
}

func TestDebugOverridesLevel(t *testing.T) {
	log, err := New(&Config{Level: "error", Debug: true})
	require.NoError(t, err)

	zl, ok := log.(*zeroLogger)
	require.True(t, ok)
	assert.Equal(t, zerolog.DebugLevel, zl.logger.GetLevel())
}

func TestWithComponent(t *testing.T) {
	log := NewTestLogger()
	component := log.WithComponent("pairing")
	require.NotNil(t, component)

	// The derived logger must remain usable.
	component.Info().Msg("ignored")
}
