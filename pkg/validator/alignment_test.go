package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/epack"
)

func TestScore_RelatedTextsScoreHigherThanUnrelated(t *testing.T) {
	prompt := "explain how photosynthesis converts sunlight into energy"
	related := "photosynthesis is the process plants use to convert sunlight into chemical energy"
	unrelated := "here is a recipe for chocolate chip cookies"

	require.Greater(t, Score(prompt, related), Score(prompt, unrelated))
}

func TestCheckAlignment_ThresholdsByProfile(t *testing.T) {
	require.Less(t, AlignmentThreshold[epack.ProfileFast], AlignmentThreshold[epack.ProfileHighAssurance])
}
