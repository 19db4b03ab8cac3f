package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtrT(s string) *string { return &s }

func writeTemplateFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFileName), []byte(`{
		"id": "my-template",
		"name": "My Template",
		"options": {
			"projectName": { "type": "string", "default": "app" },
			"useRedis": { "type": "boolean", "default": false }
		}
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# ${templateOption:projectName}\nredis: ${templateOption:useRedis}\n"), 0o644))
	return dir
}

func TestParseTemplateMetadata(t *testing.T) {
	dir := writeTemplateFixture(t)
	m, err := ParseTemplateMetadata(filepath.Join(dir, metadataFileName))
	require.NoError(t, err)
	assert.Equal(t, "my-template", m.ID)
	assert.Contains(t, m.Options, "projectName")
}

func TestResolveOptionsAppliesDefaultsAndRejectsUnknown(t *testing.T) {
	dir := writeTemplateFixture(t)
	m, err := ParseTemplateMetadata(filepath.Join(dir, metadataFileName))
	require.NoError(t, err)

	resolved, err := ResolveOptions(m, map[string]config.OptionValue{
		"projectName": {String: strPtrT("widgets")},
	})
	require.NoError(t, err)
	assert.Equal(t, "widgets", *resolved["projectName"].String)
	assert.False(t, *resolved["useRedis"].Bool)

	_, err = ResolveOptions(m, map[string]config.OptionValue{"bogus": {String: strPtrT("x")}})
	assert.Error(t, err)
}

func TestApplyCopiesAndSubstitutes(t *testing.T) {
	dir := writeTemplateFixture(t)
	m, err := ParseTemplateMetadata(filepath.Join(dir, metadataFileName))
	require.NoError(t, err)
	resolved, err := ResolveOptions(m, nil)
	require.NoError(t, err)

	out := t.TempDir()
	result, err := Apply(dir, out, ApplyOptions{Options: resolved})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)

	content, err := os.ReadFile(filepath.Join(out, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "# app")
	assert.Contains(t, string(content), "redis: false")

	_, err = os.Stat(filepath.Join(out, metadataFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestApplySkipsExistingUnlessForced(t *testing.T) {
	dir := writeTemplateFixture(t)
	m, err := ParseTemplateMetadata(filepath.Join(dir, metadataFileName))
	require.NoError(t, err)
	resolved, err := ResolveOptions(m, nil)
	require.NoError(t, err)

	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "README.md"), []byte("existing"), 0o644))

	result, err := Apply(dir, out, ApplyOptions{Options: resolved})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesSkipped)

	result, err = Apply(dir, out, ApplyOptions{Options: resolved, Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
}

func TestApplyDryRunDoesNotWrite(t *testing.T) {
	dir := writeTemplateFixture(t)
	m, err := ParseTemplateMetadata(filepath.Join(dir, metadataFileName))
	require.NoError(t, err)
	resolved, err := ResolveOptions(m, nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "out")
	result, err := Apply(dir, out, ApplyOptions{Options: resolved, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)

	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}
