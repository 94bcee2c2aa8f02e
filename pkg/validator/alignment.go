package validator

import (
	"github.com/bulwark-run/ecosphere/pkg/epack"
	"github.com/bulwark-run/ecosphere/pkg/safety"
)

// AlignmentThreshold is the per-profile minimum alignment score a
// generation must clear (spec.md §4.5 stage 3, §4.1's "per-profile
// alignment threshold").
var AlignmentThreshold = map[epack.Profile]float64{
	epack.ProfileFast:          0.10,
	epack.ProfileStandard:      0.18,
	epack.ProfileHighAssurance: 0.28,
}

// Score computes a deterministic placeholder alignment score as the
// cosine similarity between the prompt's and the answer's pseudo-
// embeddings (safety.Embed). Per spec.md §4.5: "Implementations may
// replace the heuristic with a real semantic aligner without changing
// the contract" — callers only depend on Score returning a value in
// [0,1] that is monotonic with topical relevance, not on this specific
// function.
func Score(promptText, answerText string) float64 {
	return safety.Cosine(safety.Embed(promptText), safety.Embed(answerText))
}

// CheckAlignment gates Score against the profile's threshold.
func CheckAlignment(promptText, answerText string, profile epack.Profile) (pass bool, score float64) {
	score = Score(promptText, answerText)
	return score >= AlignmentThreshold[profile], score
}
