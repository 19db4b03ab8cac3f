package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// TestExtendsSimple covers scenario S1 from spec.md §8: a leaf config
// extending a base merges runArgs by concatenation and containerEnv by
// key-wise union, and drops the extends field from the result.
func TestExtendsSimple(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base", "devcontainer.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(basePath), 0o755))
	require.NoError(t, os.WriteFile(basePath, []byte(`{
		"image": "ubuntu:20.04",
		"runArgs": ["--base"],
		"containerEnv": {"A": "1"}
	}`), 0o644))

	leafPath := filepath.Join(dir, "leaf", "devcontainer.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(leafPath), 0o755))
	require.NoError(t, os.WriteFile(leafPath, []byte(`{
		"extends": "../base/devcontainer.json",
		"runArgs": ["--leaf"],
		"containerEnv": {"B": "2"}
	}`), 0o644))

	parser, err := NewParser()
	require.NoError(t, err)

	cfg, err := parser.Load(leafPath, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"--base", "--leaf"}, cfg.RunArgs)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, cfg.ContainerEnv)
	assert.Nil(t, cfg.Extends)
	assert.Equal(t, "ubuntu:20.04", *cfg.Image)
}

func TestExtendsCycleDetected(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.json")
	bPath := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(aPath, []byte(`{"image":"a","extends":"b.json"}`), 0o644))
	require.NoError(t, os.WriteFile(bPath, []byte(`{"image":"b","extends":"a.json"}`), 0o644))

	parser, err := NewParser()
	require.NoError(t, err)

	_, err = parser.Load(aPath, "")
	require.Error(t, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, KindExtendsCycle, cfgErr.Kind)
	assert.NotEmpty(t, cfgErr.Chain)
}

func TestMergeLockfile(t *testing.T) {
	existing := &Lockfile{Features: map[string]LockedFeature{
		"a": {Version: "1.0.0"},
		"b": {Version: "2.0.0"},
	}}
	update := &Lockfile{Features: map[string]LockedFeature{
		"b": {Version: "2.1.0"},
	}}
	merged := MergeLockfile(existing, update)
	assert.Equal(t, "1.0.0", merged.Features["a"].Version)
	assert.Equal(t, "2.1.0", merged.Features["b"].Version)
}
