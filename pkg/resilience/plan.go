package resilience

// SystemStatus is the coarse health classification a RecoveryState
// carries alongside the TSI numbers (spec.md §4.6 "Recovery Engine").
type SystemStatus string

const (
	SystemNominal  SystemStatus = "nominal"
	SystemDegraded SystemStatus = "degraded"
	SystemIncident SystemStatus = "incident"
)

// RecoveryPlan is a named, immutable remediation option (spec.md's
// "Recovery plan" glossary entry).
type RecoveryPlan struct {
	Name                     string
	Tier                     int // 1, 2, or 3
	PredictedTSILow          float64
	PredictedTSIMedian       float64
	PredictedTSIHigh         float64
	PredictedLatencyMS       float64
	PredictedCost            float64
	PredictedIndependenceGain float64 // diversity bonus
	RoutingPatch             map[string]any
}

// RecoveryState is the current observed system state fed to the engine.
type RecoveryState struct {
	TSICurrent      float64
	TSIForecast15m  float64
	Concentration   float64 // dependency concentration metric, [0,1]
	SystemStatus    SystemStatus
	OscillationIndex float64
}

// RecoveryConfig carries the targets, budgets, and scoring weights the
// engine evaluates plans against.
type RecoveryConfig struct {
	TSIMin              float64
	TSITarget           float64
	LatencyBudgetMS     float64
	CostBudget          float64
	DiversityWeight     float64
	LatencyPenaltyWeight float64
	CostPenaltyWeight    float64
	ConfidencePenaltyWeight float64
	TierPenalty          map[int]float64
	OscillationPenaltyWeight float64
}

// DefaultRecoveryConfig returns representative targets/weights.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		TSIMin:                  0.55,
		TSITarget:                0.80,
		LatencyBudgetMS:          5000,
		CostBudget:               1.0,
		DiversityWeight:          0.30,
		LatencyPenaltyWeight:     0.0002,
		CostPenaltyWeight:        0.20,
		ConfidencePenaltyWeight:  0.50,
		TierPenalty:              map[int]float64{1: 0.0, 2: 0.05, 3: 0.12},
		OscillationPenaltyWeight: 0.25,
	}
}

// DefaultRecoveryPlans returns a representative tier-1/2/3 candidate
// set for a runtime that hasn't loaded deployment-specific plans: a
// cheap same-model retry, a cross-provider challenger escalation, and a
// full consensus-with-debate fallback.
func DefaultRecoveryPlans() []RecoveryPlan {
	return []RecoveryPlan{
		{
			Name:                      "retry-same-model",
			Tier:                      1,
			PredictedTSILow:           0.50,
			PredictedTSIMedian:        0.62,
			PredictedTSIHigh:          0.70,
			PredictedLatencyMS:        800,
			PredictedCost:             0.10,
			PredictedIndependenceGain: 0.05,
			RoutingPatch:              map[string]any{"action": "retry"},
		},
		{
			Name:                      "escalate-challenger",
			Tier:                      2,
			PredictedTSILow:           0.60,
			PredictedTSIMedian:        0.75,
			PredictedTSIHigh:          0.85,
			PredictedLatencyMS:        2200,
			PredictedCost:             0.35,
			PredictedIndependenceGain: 0.30,
			RoutingPatch:              map[string]any{"action": "invoke_challenger"},
		},
		{
			Name:                      "full-consensus-debate",
			Tier:                      3,
			PredictedTSILow:           0.70,
			PredictedTSIMedian:        0.85,
			PredictedTSIHigh:          0.93,
			PredictedLatencyMS:        5000,
			PredictedCost:             0.80,
			PredictedIndependenceGain: 0.45,
			RoutingPatch:              map[string]any{"action": "enable_debate"},
		},
	}
}

// ShouldTrigger reports whether the recovery engine should act at all
// (spec.md "Triggers: system status in {degraded, incident}, or
// forecast < tsi_min, or (concentration >= 0.70 and forecast < tsi_target)").
func ShouldTrigger(state RecoveryState, cfg RecoveryConfig) bool {
	if state.SystemStatus == SystemDegraded || state.SystemStatus == SystemIncident {
		return true
	}
	if state.TSIForecast15m < cfg.TSIMin {
		return true
	}
	if state.Concentration >= 0.70 && state.TSIForecast15m < cfg.TSITarget {
		return true
	}
	return false
}

// ExcludedPlans reports which plan names are currently unusable
// (consulted against the circuit breaker every cycle).
type ExcludedPlans interface {
	Excluded(planName string) bool
}

func positivePart(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// score computes a plan's selection score per spec.md §4.6's formula.
func score(plan RecoveryPlan, cfg RecoveryConfig) float64 {
	gain := plan.PredictedTSIMedian
	diversity := cfg.DiversityWeight * plan.PredictedIndependenceGain
	latencyPenalty := cfg.LatencyPenaltyWeight * plan.PredictedLatencyMS
	costPenalty := cfg.CostPenaltyWeight * plan.PredictedCost
	confidencePenalty := cfg.ConfidencePenaltyWeight * positivePart(cfg.TSIMin-plan.PredictedTSILow)
	tierPenalty := cfg.TierPenalty[plan.Tier]

	return gain + diversity - latencyPenalty - costPenalty - confidencePenalty - tierPenalty
}

// SelectPlan deterministically picks at most one plan from candidates
// (spec.md §4.6 "Recovery Engine"). Returns (nil, false) if no plan
// survives rejection or the state does not warrant acting.
func SelectPlan(state RecoveryState, candidates []RecoveryPlan, cfg RecoveryConfig, excluded ExcludedPlans, oscillationPenalty float64) (*RecoveryPlan, bool) {
	if !ShouldTrigger(state, cfg) {
		return nil, false
	}

	var survivors []RecoveryPlan
	for _, p := range candidates {
		if p.PredictedLatencyMS > cfg.LatencyBudgetMS {
			continue
		}
		if p.PredictedCost > cfg.CostBudget {
			continue
		}
		if excluded != nil && excluded.Excluded(p.Name) {
			continue
		}
		survivors = append(survivors, p)
	}
	if len(survivors) == 0 {
		return nil, false
	}

	scoredList := make([]scoredPlan, len(survivors))
	for i, p := range survivors {
		s := score(p, cfg) - cfg.OscillationPenaltyWeight*oscillationPenalty*state.OscillationIndex
		scoredList[i] = scoredPlan{plan: p, score: s}
	}

	// Sort by (score desc, predicted_independence_gain desc, tier asc) — the
	// tiebreak order is normative (spec.md §4.6).
	for i := 1; i < len(scoredList); i++ {
		for j := i; j > 0; j-- {
			a, b := scoredList[j-1], scoredList[j]
			if !less(a, b) {
				break
			}
			scoredList[j-1], scoredList[j] = scoredList[j], scoredList[j-1]
		}
	}

	best := scoredList[0].plan
	return &best, true
}

type scoredPlan struct {
	plan  RecoveryPlan
	score float64
}

func less(a, b scoredPlan) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	if a.plan.PredictedIndependenceGain != b.plan.PredictedIndependenceGain {
		return a.plan.PredictedIndependenceGain < b.plan.PredictedIndependenceGain
	}
	return a.plan.Tier > b.plan.Tier
}
