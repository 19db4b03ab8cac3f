package feature

import (
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func canon(t *testing.T, raw string) string {
	t.Helper()
	ref, err := ParseRef(raw)
	require.NoError(t, err)
	return ref.CanonicalID()
}

// TestBuildPlanOverrideOrder implements scenario S2 from spec §8: features
// {A, B, C} where C installsAfter A, B dependsOn A, with override order
// [B, C, A]. Expected levels: [[A], [B, C]].
func TestBuildPlanOverrideOrder(t *testing.T) {
	a, b, c := canon(t, "registry/ns/a"), canon(t, "registry/ns/b"), canon(t, "registry/ns/c")

	resolved := map[string]*Resolved{
		a: {ID: a, Metadata: &Metadata{ID: "a"}},
		b: {ID: b, Metadata: &Metadata{ID: "b", DependsOn: map[string]config.FeatureOptionsMap{"registry/ns/a": {}}}},
		c: {ID: c, Metadata: &Metadata{ID: "c", InstallsAfter: []string{"registry/ns/a"}}},
	}
	declarationOrder := []string{a, b, c}
	overrideOrder := []string{b, c, a}

	plan, err := BuildPlan(resolved, declarationOrder, overrideOrder)
	require.NoError(t, err)

	require.Len(t, plan.Levels, 2)
	assert.Equal(t, []string{a}, plan.Levels[0])
	assert.Equal(t, []string{b, c}, plan.Levels[1])
	assert.Len(t, plan.Features, 3)
}

// TestBuildPlanDeclarationOrderFallback checks tie-breaking falls back to
// declaration order when no override is supplied (spec §8 invariant 4).
func TestBuildPlanDeclarationOrderFallback(t *testing.T) {
	a, b := canon(t, "registry/ns/a"), canon(t, "registry/ns/b")

	resolved := map[string]*Resolved{
		a: {ID: a, Metadata: &Metadata{ID: "a"}},
		b: {ID: b, Metadata: &Metadata{ID: "b"}},
	}
	declarationOrder := []string{b, a}

	plan, err := BuildPlan(resolved, declarationOrder, nil)
	require.NoError(t, err)

	require.Len(t, plan.Levels, 1)
	assert.Equal(t, []string{b, a}, plan.Levels[0])
}

// TestBuildPlanCycleDetected covers invariant 3's cycle case: a -> b -> a
// via dependsOn must surface a fatal error naming the participants.
func TestBuildPlanCycleDetected(t *testing.T) {
	a, b := canon(t, "registry/ns/a"), canon(t, "registry/ns/b")

	resolved := map[string]*Resolved{
		a: {ID: a, Metadata: &Metadata{ID: "a", DependsOn: map[string]config.FeatureOptionsMap{"registry/ns/b": {}}}},
		b: {ID: b, Metadata: &Metadata{ID: "b", DependsOn: map[string]config.FeatureOptionsMap{"registry/ns/a": {}}}},
	}

	_, err := BuildPlan(resolved, []string{a, b}, nil)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}
