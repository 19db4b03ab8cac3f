package feature

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Run()
}

// TestResolveAllFollowsDependsOn exercises the local-path fetch path plus
// the transitive dependsOn expansion from spec §4.4 steps 1-4: only "beta"
// is declared, but "alpha" is pulled in as a dependency with beta's
// dependsOn option override applied on top of alpha's own default.
func TestResolveAllFollowsDependsOn(t *testing.T) {
	var features config.FeatureMap
	require.NoError(t, json.Unmarshal([]byte(`{"./beta": {}}`), &features))

	r := NewResolver(nil, nil, filepath.Join("testdata", "features"))
	resolved, err := r.ResolveAll(context.Background(), features)
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	// Local features are keyed by their absolute directory.
	alphaID, err := filepath.Abs(filepath.Join("testdata", "features", "alpha"))
	require.NoError(t, err)
	betaID, err := filepath.Abs(filepath.Join("testdata", "features", "beta"))
	require.NoError(t, err)

	require.Contains(t, resolved, alphaID)
	require.Contains(t, resolved, betaID)

	alpha := resolved[alphaID]
	opt, ok := alpha.Options["version"]
	require.True(t, ok)
	require.NotNil(t, opt.String)
	require.Equal(t, "1.2.3", *opt.String)
}
