package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNonGitDirectoryIsItself(t *testing.T) {
	dir := t.TempDir()
	resolved, err := Resolve(dir)
	require.NoError(t, err)

	real, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, real, resolved)
}

func TestFingerprintStableAndDistinguishing(t *testing.T) {
	a := Fingerprint("/workspace/one", []byte(`{"image":"ubuntu"}`))
	b := Fingerprint("/workspace/one", []byte(`{"image":"ubuntu"}`))
	c := Fingerprint("/workspace/two", []byte(`{"image":"ubuntu"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestResolveMissingPathReturnsAbs(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist")
	resolved, err := Resolve(missing)
	require.NoError(t, err)
	assert.Equal(t, missing, resolved)
	_, statErr := os.Stat(resolved)
	assert.True(t, os.IsNotExist(statErr))
}
