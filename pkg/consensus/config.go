package consensus

import "time"

// ModelSpec names a provider/model pair an orchestrator role should use.
type ModelSpec struct {
	Provider string
	Model    string
}

// PromptTemplate holds the primary and repair prompt templates. Each is a
// Go text/template-style string with `{{.Field}}` placeholders filled in
// by the orchestrator at render time.
type PromptTemplate struct {
	Primary string
	Repair  string
}

// DebateConfig configures the two-stage (debate) flow's three roles.
type DebateConfig struct {
	EnableDebate bool
	Defender     ModelSpec
	Critic       ModelSpec
	Synthesizer  ModelSpec
}

// Config is the full configuration for one orchestrator invocation
// (spec.md §4.4).
type Config struct {
	Profile           string
	Primary           ModelSpec
	Validators        []ModelSpec
	Prompts           PromptTemplate
	AlignmentTemp     float64
	Timeout           time.Duration
	MaxRepairAttempts int
	Debate            *DebateConfig
	ScopeGate         ScopeGateConfig
	ChallengerPolicy  ChallengerPolicy
}

// VerificationContext is externally supplied context describing the
// caller's verification standing; it selects a preset via RoleLevel.
type VerificationContext struct {
	Verified  bool
	Role      string
	RoleLevel int
	Scope     string
}

// FASTPreset: primary only, 1 repair, at most 1 validator.
func FASTPreset(primary ModelSpec, prompts PromptTemplate) Config {
	return Config{
		Profile:           "FAST",
		Primary:           primary,
		Validators:        nil,
		Prompts:           prompts,
		AlignmentTemp:     0.2,
		Timeout:           10 * time.Second,
		MaxRepairAttempts: 1,
		ScopeGate:         DefaultScopeGateConfig(),
		ChallengerPolicy:  DefaultChallengerPolicy(),
	}
}

// HighAssurancePreset: primary plus up to 2 validators, 2 repairs.
func HighAssurancePreset(primary ModelSpec, validators []ModelSpec, debate *DebateConfig, prompts PromptTemplate) Config {
	if len(validators) > 2 {
		validators = validators[:2]
	}
	return Config{
		Profile:           "HIGH_ASSURANCE",
		Primary:           primary,
		Validators:        validators,
		Prompts:           prompts,
		AlignmentTemp:     0.1,
		Timeout:           30 * time.Second,
		MaxRepairAttempts: 2,
		Debate:            debate,
		ScopeGate:         DefaultScopeGateConfig(),
		ChallengerPolicy:  DefaultChallengerPolicy(),
	}
}

// ConsensusPreset: primary plus up to 3 validators, 2 repairs.
func ConsensusPreset(primary ModelSpec, validators []ModelSpec, debate *DebateConfig, prompts PromptTemplate) Config {
	if len(validators) > 3 {
		validators = validators[:3]
	}
	return Config{
		Profile:           "CONSENSUS",
		Primary:           primary,
		Validators:        validators,
		Prompts:           prompts,
		AlignmentTemp:     0.15,
		Timeout:           30 * time.Second,
		MaxRepairAttempts: 2,
		Debate:            debate,
		ScopeGate:         DefaultScopeGateConfig(),
		ChallengerPolicy:  DefaultChallengerPolicy(),
	}
}

// PresetForRole maps a VerificationContext's role level to one of the
// three regime presets (spec.md §4.4: "per-verification-role routing").
func PresetForRole(vc VerificationContext, primary ModelSpec, validators []ModelSpec, debate *DebateConfig, prompts PromptTemplate) Config {
	switch {
	case vc.RoleLevel >= 3:
		return ConsensusPreset(primary, validators, debate, prompts)
	case vc.RoleLevel == 2:
		return HighAssurancePreset(primary, validators, debate, prompts)
	default:
		return FASTPreset(primary, prompts)
	}
}
