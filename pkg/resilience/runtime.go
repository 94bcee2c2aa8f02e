package resilience

import (
	"time"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
	"github.com/bulwark-run/ecosphere/pkg/consensus"
)

// Runtime wires the TSI tracker, recovery engine, damping stabilizer,
// circuit breaker table, and post-recovery verifier into one
// observe-then-react loop, and records every decision onto a
// hash-chained event ledger (spec.md: "TSI tracker + Recovery engine ->
// Resilience runtime (observes outcomes, emits resilience EPACK events)").
//
// Reuses pkg/consensus.Ledger for event hash-chaining rather than
// inventing a second chain type: both are append-only stage-event logs
// keyed by the same canonical tagged hash.
type Runtime struct {
	TSI        *TSITracker
	Recovery   RecoveryConfig
	Damping    *DampingStabilizer
	Breakers   *PlanBreakers
	Verifier   VerifierConfig
	Rollback   RollbackState
	Candidates []RecoveryPlan
	Events     *consensus.Ledger
}

// Stage names for the resilience event ledger.
const (
	StageObserve  = "resilience.observe"
	StageSelect   = "resilience.select"
	StageDamp     = "resilience.damp"
	StageApply    = "resilience.apply"
	StageVerify   = "resilience.verify"
	StageRollback = "resilience.rollback"
)

// NewRuntime builds a resilience runtime with representative defaults.
func NewRuntime(candidates []RecoveryPlan) *Runtime {
	return &Runtime{
		TSI:        NewTSITracker(200),
		Recovery:   DefaultRecoveryConfig(),
		Damping:    NewDampingStabilizer(DefaultDampingConfig()),
		Breakers:   NewPlanBreakers(3, 2*time.Minute),
		Verifier:   DefaultVerifierConfig(),
		Candidates: candidates,
		Events:     consensus.NewLedger(canonicalize.DefaultAlgorithm),
	}
}

// Observe records one interaction outcome and emits a ledger event.
func (r *Runtime) Observe(outcome InteractionOutcome) {
	r.TSI.Signal(outcome)
	r.Events.Append(StageObserve, map[string]any{
		"status":    string(outcome.Status),
		"agreement": outcome.ValidatorAgreement,
	})
}

// Cycle runs one full observe-react cycle: checks whether the engine
// should act, selects a plan if so, damps its rollout, and records the
// decision. Returns nil if no action was taken this cycle.
func (r *Runtime) Cycle(concentration, oscillation float64) *RecoveryPlan {
	state := RecoveryState{
		TSICurrent:       r.TSI.Current(),
		TSIForecast15m:   r.TSI.Forecast15m(),
		Concentration:    concentration,
		OscillationIndex: oscillation,
	}
	switch {
	case state.TSIForecast15m < 0.25:
		state.SystemStatus = SystemIncident
	case state.TSIForecast15m < r.Recovery.TSIMin:
		state.SystemStatus = SystemDegraded
	default:
		state.SystemStatus = SystemNominal
	}

	plan, ok := SelectPlan(state, r.Candidates, r.Recovery, r.Breakers, 1.0)
	if !ok {
		r.Events.Append(StageSelect, map[string]any{"selected": false})
		return nil
	}
	r.Events.Append(StageSelect, map[string]any{"selected": true, "plan": plan.Name})

	pct, cooldown := r.Damping.Step(state.TSIForecast15m, r.Recovery.TSITarget, concentration, oscillation, 60)
	ApplyToPlan(plan, pct, cooldown)
	r.Events.Append(StageDamp, map[string]any{"canary_pct": pct, "cooldown_seconds": cooldown})

	r.Rollback.LastAppliedPlan = plan.Name
	r.Events.Append(StageApply, map[string]any{"plan": plan.Name})
	return plan
}

// VerifyAndMaybeRollback runs the post-recovery verifier against the
// TSI observed before and after the applied plan, rolling back and
// updating the plan's breaker if warranted.
func (r *Runtime) VerifyAndMaybeRollback(tsiBefore float64, samples []ReplaySample) VerifyResult {
	tsiAfter := r.TSI.Current()
	result := VerifyRecovery(tsiBefore, tsiAfter, samples, r.Verifier)
	r.Events.Append(StageVerify, map[string]any{"outcome": string(result.Outcome), "reasons": result.Reasons})

	if result.Outcome == OutcomeRollback {
		planName := r.Rollback.LastAppliedPlan
		Rollback(&r.Rollback, result, r.Breakers)
		r.Events.Append(StageRollback, map[string]any{"plan": planName, "reasons": result.Reasons})
	} else if result.Outcome == OutcomeImproved && r.Rollback.LastAppliedPlan != "" {
		r.Breakers.Success(r.Rollback.LastAppliedPlan)
	}
	return result
}
