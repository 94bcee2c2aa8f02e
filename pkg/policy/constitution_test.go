package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

func TestLoadConstitution_StableAcrossCalls(t *testing.T) {
	a, err := LoadConstitution(canonicalize.DefaultAlgorithm)
	require.NoError(t, err)
	b, err := LoadConstitution(canonicalize.DefaultAlgorithm)
	require.NoError(t, err)

	require.Equal(t, a.Hash, b.Hash)
	require.NotEmpty(t, a.Invariants)
}

func TestLoadConstitution_EveryInvariantHasRequiredFields(t *testing.T) {
	c, err := LoadConstitution(canonicalize.DefaultAlgorithm)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, inv := range c.Invariants {
		require.NotEmpty(t, inv.ID)
		require.NotEmpty(t, inv.Name)
		require.NotEmpty(t, inv.Check)
		require.Contains(t, []Severity{SeverityCritical, SeverityWarning, SeverityAdvisory}, inv.Severity)
		require.False(t, seen[inv.ID], "duplicate invariant id %s", inv.ID)
		seen[inv.ID] = true
	}
}

func TestLoadConstitution_ReturnsACopyNotTheSharedSlice(t *testing.T) {
	c, err := LoadConstitution(canonicalize.DefaultAlgorithm)
	require.NoError(t, err)
	c.Invariants[0].Name = "mutated"

	c2, err := LoadConstitution(canonicalize.DefaultAlgorithm)
	require.NoError(t, err)
	require.NotEqual(t, "mutated", c2.Invariants[0].Name)
}
