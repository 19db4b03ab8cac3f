package entrypoint

import (
	"testing"

	"github.com/get2knowio/deacon/internal/feature"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func plan(entrypoints ...string) *feature.InstallationPlan {
	var features []*feature.Resolved
	for i, ep := range entrypoints {
		m := &feature.Metadata{}
		if ep != "" {
			m.Entrypoint = strPtr(ep)
		}
		features = append(features, &feature.Resolved{ID: "f", Metadata: m})
		_ = i
	}
	return &feature.InstallationPlan{Features: features}
}

func TestMergeWrapDefault(t *testing.T) {
	p := plan("/usr/local/bin/docker-init")
	got := Merge(PolicyWrap, p, "/original-entrypoint.sh", "")
	assert.Contains(t, got, "/usr/local/bin/docker-init")
	assert.Contains(t, got, `exec /original-entrypoint.sh "$@"`)
}

func TestMergeIgnore(t *testing.T) {
	p := plan("/usr/local/bin/docker-init")
	got := Merge(PolicyIgnore, p, "/original-entrypoint.sh", "")
	assert.Equal(t, "/original-entrypoint.sh", got)
}

func TestMergeReplace(t *testing.T) {
	p := plan("/a/entrypoint", "/b/entrypoint")
	got := Merge(PolicyReplace, p, "/original-entrypoint.sh", "")
	assert.Equal(t, "/b/entrypoint", got)
}

func TestComposeEntrypointAlwaysWins(t *testing.T) {
	p := plan("/a/entrypoint")
	got := Merge(PolicyWrap, p, "/original-entrypoint.sh", "/compose/entrypoint.sh")
	assert.Equal(t, "/compose/entrypoint.sh", got)
}
