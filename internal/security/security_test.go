package security

import (
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/feature"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestMergeUnionsAndDetectsConflict(t *testing.T) {
	cfg := &config.DevContainerConfig{
		Privileged:  boolPtr(false),
		CapAdd:      []string{"SYS_PTRACE"},
		SecurityOpt: []string{"seccomp=unconfined"},
	}
	plan := &feature.InstallationPlan{
		Features: []*feature.Resolved{
			{
				ID: "docker-in-docker",
				Metadata: &feature.Metadata{
					Privileged: boolPtr(true),
					CapAdd:     []string{"NET_ADMIN"},
				},
			},
		},
	}

	merged := Merge(cfg, plan)
	assert.True(t, merged.Privileged)
	assert.True(t, merged.PrivilegedConflict)
	assert.Equal(t, []string{"NET_ADMIN", "SYS_PTRACE"}, merged.CapAdd)
	assert.Equal(t, []string{"seccomp=unconfined"}, merged.SecurityOpt)
}

func TestToEngineArgs(t *testing.T) {
	merged := Merged{Privileged: true, CapAdd: []string{"NET_ADMIN"}, SecurityOpt: []string{"seccomp=unconfined"}}
	args := merged.ToEngineArgs()
	assert.Equal(t, []string{"--privileged", "--cap-add", "NET_ADMIN", "--security-opt", "seccomp=unconfined"}, args)
}

func TestMergeNoConflictWhenAllAgree(t *testing.T) {
	cfg := &config.DevContainerConfig{}
	plan := &feature.InstallationPlan{Features: []*feature.Resolved{
		{ID: "a", Metadata: &feature.Metadata{Privileged: boolPtr(true)}},
		{ID: "b", Metadata: &feature.Metadata{Privileged: boolPtr(true)}},
	}}
	merged := Merge(cfg, plan)
	assert.True(t, merged.Privileged)
	assert.False(t, merged.PrivilegedConflict)
}
