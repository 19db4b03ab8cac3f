package outdated

import (
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReportComparesAgainstLockfile(t *testing.T) {
	a := &Analyzer{}
	lock := &config.Lockfile{Features: map[string]config.LockedFeature{
		"ghcr.io/devcontainers/features/node": {Version: "16.2.0"},
	}}

	report := a.buildReport("ghcr.io/devcontainers/features/node:18", []string{"16.0.0", "18.1.0", "19.0.0-beta.1"}, lock)

	require.NotNil(t, report.Current)
	assert.Equal(t, "16.2.0", *report.Current)
	require.NotNil(t, report.Wanted)
	assert.Equal(t, "18", *report.Wanted)
	require.NotNil(t, report.Latest)
	assert.Equal(t, "18.1.0", *report.Latest)
	assert.True(t, report.IsOutdated())
}

func TestBuildReportNoTagsLeavesLatestNil(t *testing.T) {
	a := &Analyzer{}
	report := a.buildReport("ghcr.io/devcontainers/features/node", nil, nil)
	assert.Nil(t, report.Latest)
	assert.Nil(t, report.Wanted)
	assert.False(t, report.IsOutdated())
}

func TestIsOutdatedFalseWhenUpToDate(t *testing.T) {
	current := "18.1.0"
	wanted := "18.1.0"
	latest := "18.1.0"
	report := Report{Current: &current, Wanted: &wanted, Latest: &latest}
	assert.False(t, report.IsOutdated())
}
