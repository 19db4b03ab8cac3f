package gpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("ALL")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, m)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}

func TestDetectCapabilityMissingRuntimeIsBestEffort(t *testing.T) {
	cap := DetectCapability(context.Background(), "nonexistent-runtime-binary-xyz")
	assert.False(t, cap.Available)
	assert.NotEmpty(t, cap.ProbeError)
}

func TestResolveNoneProducesNoArgs(t *testing.T) {
	app := NewApplication(ModeNone)
	args := Resolve(context.Background(), ModeNone, "docker", app)
	assert.Nil(t, args)
	assert.False(t, app.AppliesToRun)
}

func TestResolveAllAlwaysRequests(t *testing.T) {
	app := NewApplication(ModeAll)
	args := Resolve(context.Background(), ModeAll, "docker", app)
	assert.Equal(t, []string{"--gpus", "all"}, args)
	assert.True(t, app.AppliesToRun)
	assert.True(t, app.AppliesToBuild)
}
