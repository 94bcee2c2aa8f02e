package resilience

import "math"

// MVIWeights are the Meta-Validation Index's three composite weights
// (spec.md §4.6 "Meta-Validation Index (MVI)").
type MVIWeights struct {
	ReplayStability      float64
	RecoveryConsistency  float64
	TSICoherence         float64
}

// DefaultMVIWeights returns the spec's named split: 40/35/25.
func DefaultMVIWeights() MVIWeights {
	return MVIWeights{ReplayStability: 0.40, RecoveryConsistency: 0.35, TSICoherence: 0.25}
}

// MVIPassThreshold is the fixed pass/fail line (spec.md: "Pass threshold 0.80").
const MVIPassThreshold = 0.80

// MVIInputs are the three raw component measurements the composite is
// built from.
type MVIInputs struct {
	// ReplayStability is the fraction of matching governance verdicts
	// across two independent replay passes, already in [0,1].
	ReplayStability float64
	// RecoveryConsistency is the fraction of N trials of the recovery
	// engine, given identical inputs, that selected the same plan.
	RecoveryConsistency float64
	// TSISamples is the sequence of TSI values sampled for coherence
	// checking: bounded, finite, and without an adjacent jump > 0.40.
	TSISamples []float64
}

// tsiCoherence scores 1.0 if every sample is finite, in [0,1], and no
// adjacent pair differs by more than 0.40; otherwise 0.0 (spec.md: a
// coherence violation is binary, not partial-credit).
func tsiCoherence(samples []float64) float64 {
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 || s > 1 {
			return 0
		}
	}
	for i := 1; i < len(samples); i++ {
		if math.Abs(samples[i]-samples[i-1]) > 0.40 {
			return 0
		}
	}
	return 1
}

// MVIResult carries the composite score and its component breakdown.
type MVIResult struct {
	Score               float64
	ReplayStability     float64
	RecoveryConsistency float64
	TSICoherence        float64
	Pass                bool
}

// ComputeMVI builds the weighted composite per spec.md §4.6.
func ComputeMVI(in MVIInputs, weights MVIWeights) MVIResult {
	coherence := tsiCoherence(in.TSISamples)
	score := weights.ReplayStability*clamp01(in.ReplayStability) +
		weights.RecoveryConsistency*clamp01(in.RecoveryConsistency) +
		weights.TSICoherence*coherence

	return MVIResult{
		Score:               score,
		ReplayStability:     clamp01(in.ReplayStability),
		RecoveryConsistency: clamp01(in.RecoveryConsistency),
		TSICoherence:        coherence,
		Pass:                score >= MVIPassThreshold,
	}
}
