package mount

import (
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseRoundTrip covers the ToEngineArgs round-trip property from spec
// §8 invariant 7: every accepted syntax parses to the expected Spec, and that
// Spec's ToEngineArgs string parses back to an equivalent Spec.
func TestParseRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		raw  *config.MobyMount
		want Spec
	}{
		{
			name: "full form",
			raw:  &config.MobyMount{Raw: "type=bind,source=/host/x,target=/container/y,ro"},
			want: Spec{Type: "bind", Source: "/host/x", Target: "/container/y", ReadOnly: true, Options: map[string]string{}},
		},
		{
			name: "short form bind",
			raw:  &config.MobyMount{Raw: "/host/x:/container/y"},
			want: Spec{Type: "bind", Source: "/host/x", Target: "/container/y"},
		},
		{
			name: "named volume",
			raw:  &config.MobyMount{Raw: "cache:/container/y:ro"},
			want: Spec{Type: "volume", Source: "cache", Target: "/container/y", ReadOnly: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.raw, "/workspace")
			require.NoError(t, err)
			assert.Equal(t, tc.want.Type, got.Type)
			assert.Equal(t, tc.want.Source, got.Source)
			assert.Equal(t, tc.want.Target, got.Target)
			assert.Equal(t, tc.want.ReadOnly, got.ReadOnly)

			again, err := Parse(&config.MobyMount{Raw: got.ToEngineArgs()[1]}, "/workspace")
			require.NoError(t, err)
			assert.Equal(t, got.Type, again.Type)
			assert.Equal(t, got.Source, again.Source)
			assert.Equal(t, got.Target, again.Target)
			assert.Equal(t, got.ReadOnly, again.ReadOnly)
		})
	}
}

func TestParseRejectsRelativeTarget(t *testing.T) {
	_, err := Parse(&config.MobyMount{Raw: "/host:rel/path"}, "/workspace")
	require.Error(t, err)
}

func TestParseResolvesRelativeBindSourceAgainstWorkspace(t *testing.T) {
	got, err := Parse(&config.MobyMount{Type: "bind", Source: "data", Target: "/container/data"}, "/workspace")
	require.NoError(t, err)
	assert.Equal(t, "/workspace/data", got.Source)
}

func TestToEngineArgs(t *testing.T) {
	spec := Spec{Type: "bind", Source: "/x", Target: "/y", ReadOnly: true, Consistency: "cached"}
	args := spec.ToEngineArgs()
	require.Len(t, args, 2)
	assert.Equal(t, "--mount", args[0])
	assert.Equal(t, "type=bind,source=/x,target=/y,readonly,consistency=cached", args[1])
}
