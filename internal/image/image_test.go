package image

import (
	"strings"
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/feature"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeFeatureID(t *testing.T) {
	assert.Equal(t, "ghcr_io_devcontainers_features_node", SanitizeFeatureID("ghcr.io/devcontainers/features/node"))
}

func TestTag(t *testing.T) {
	assert.Equal(t, "deacon-devcontainer-features:abc123", Tag("abc123"))
}

func TestGenerateDockerfileRendersOneRunPerFeature(t *testing.T) {
	v := "18"
	plan := &feature.InstallationPlan{
		Features: []*feature.Resolved{
			{
				ID: "ghcr.io/devcontainers/features/node",
				Options: config.FeatureOptionsMap{
					"version": {String: &v},
				},
			},
		},
		Levels: [][]string{{"ghcr.io/devcontainers/features/node"}},
	}

	out := GenerateDockerfile(plan, "mcr.microsoft.com/devcontainers/base:ubuntu")

	assert.True(t, strings.HasPrefix(out, "ARG _DEV_CONTAINERS_BASE_IMAGE=mcr.microsoft.com/devcontainers/base:ubuntu\n"))
	assert.Contains(t, out, "FROM ${_DEV_CONTAINERS_BASE_IMAGE} AS dev_containers_target_stage")
	assert.Contains(t, out, "RUN mkdir -p /tmp/dev-container-features")
	assert.Contains(t, out, "RUN --mount=type=bind,from=ghcr_io_devcontainers_features_node,source=ghcr_io_devcontainers_features_node_0,target=/tmp/dev-container-features/ghcr_io_devcontainers_features_node,rw \\")
	assert.Contains(t, out, `VERSION="18"`)
	assert.Contains(t, out, "cd /tmp/dev-container-features/ghcr_io_devcontainers_features_node && chmod +x install.sh && ./install.sh")
}

func TestBuildOptionsCLIArgs(t *testing.T) {
	opts := BuildOptions{CacheFrom: []string{"a"}, CacheTo: []string{"b"}, Builder: "mybuilder", NoCache: true}
	args := opts.CLIArgs()
	assert.Equal(t, []string{"--cache-from", "a", "--cache-to", "b", "--builder", "mybuilder", "--no-cache"}, args)
}

func TestRequiresBuildKit(t *testing.T) {
	assert.Empty(t, RequiresBuildKit(BuildOptions{}))
	assert.ElementsMatch(t, []string{"--cache-from", "--builder"}, RequiresBuildKit(BuildOptions{CacheFrom: []string{"x"}, Builder: "b"}))
}
