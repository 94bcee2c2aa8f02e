package resilience

// VerifierConfig names the thresholds the post-recovery verifier
// applies (spec.md §4.6 "Post-Recovery Verifier").
type VerifierConfig struct {
	MinTSIImprovement float64
	MaxTSIDegradation float64
	TSICritical       float64
}

// DefaultVerifierConfig returns representative thresholds.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		MinTSIImprovement: 0.05,
		MaxTSIDegradation: 0.10,
		TSICritical:       0.35,
	}
}

// ReplaySample is one governance-match observation taken after a plan
// was applied.
type ReplaySample struct {
	GovernanceMatch bool
}

// VerificationOutcome is the verifier's verdict.
type VerificationOutcome string

const (
	OutcomeImproved    VerificationOutcome = "improved"
	OutcomeUnchanged   VerificationOutcome = "unchanged"
	OutcomeRollback    VerificationOutcome = "rollback"
)

// VerifyResult carries the verdict plus the reason chain that produced it.
type VerifyResult struct {
	Outcome VerificationOutcome
	Reasons []string
}

// VerifyRecovery compares TSI before/after a plan's application and
// samples any replay results. A governance mismatch in any sample is
// checked first and always rolls back; otherwise improvement is checked,
// then the degradation and critical-floor rollback conditions.
func VerifyRecovery(tsiBefore, tsiAfter float64, samples []ReplaySample, cfg VerifierConfig) VerifyResult {
	var reasons []string

	for _, s := range samples {
		if !s.GovernanceMatch {
			reasons = append(reasons, "replay sample showed a governance mismatch")
		}
	}
	if len(reasons) > 0 {
		return VerifyResult{Outcome: OutcomeRollback, Reasons: reasons}
	}

	if tsiAfter-tsiBefore >= cfg.MinTSIImprovement {
		return VerifyResult{Outcome: OutcomeImproved, Reasons: []string{"tsi improved by at least the minimum threshold"}}
	}

	if tsiBefore-tsiAfter >= cfg.MaxTSIDegradation {
		reasons = append(reasons, "tsi degraded by at least the maximum allowed threshold")
	}
	if tsiAfter < cfg.TSICritical {
		reasons = append(reasons, "tsi remains below the critical floor")
	}
	if len(reasons) > 0 {
		return VerifyResult{Outcome: OutcomeRollback, Reasons: reasons}
	}

	return VerifyResult{Outcome: OutcomeUnchanged}
}

// RollbackState tracks the "last applied plan" the verifier clears on
// rollback, and the accumulated reason chain.
type RollbackState struct {
	LastAppliedPlan string
	Reasons         []string
}

// Rollback clears the last-applied plan and records the reason chain,
// and reports the breaker failure that should be recorded for it.
func Rollback(state *RollbackState, result VerifyResult, breakers *PlanBreakers) {
	if result.Outcome != OutcomeRollback {
		return
	}
	planName := state.LastAppliedPlan
	state.LastAppliedPlan = ""
	state.Reasons = append(state.Reasons, result.Reasons...)
	if breakers != nil && planName != "" {
		breakers.Failure(planName)
	}
}
