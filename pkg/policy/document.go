package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConsensusBlock mirrors the shape pkg/consensus.Config is built from
// (spec.md §6: "a consensus block (primary, validators, debate triple,
// primary_timeout_s, max_repair_attempts, enable_debate)").
type ConsensusBlock struct {
	Primary           ModelRef   `yaml:"primary"`
	Validators        []ModelRef `yaml:"validators"`
	Debate            *DebateRef `yaml:"debate"`
	PrimaryTimeoutS   float64    `yaml:"primary_timeout_s"`
	MaxRepairAttempts int        `yaml:"max_repair_attempts"`
	EnableDebate      bool       `yaml:"enable_debate"`
}

// ModelRef names a provider/model pair within the policy file.
type ModelRef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// DebateRef names the defender/critic/synthesizer triple.
type DebateRef struct {
	Defender    ModelRef `yaml:"defender"`
	Critic      ModelRef `yaml:"critic"`
	Synthesizer ModelRef `yaml:"synthesizer"`
}

// ChallengerBlock mirrors pkg/consensus.ChallengerPolicy.
type ChallengerBlock struct {
	DisagreementThreshold    float64  `yaml:"disagreement_threshold"`
	TriggerDomains           []string `yaml:"trigger_domains"`
	TriggerOnScopeGate       bool     `yaml:"trigger_on_scope_gate"`
	TriggerOnLowEvidence     bool     `yaml:"trigger_on_low_evidence"`
	MaxInvocationsPerSession int      `yaml:"max_invocations_per_session"`
}

// EvidenceRulesBlock configures the validator's evidence gate.
type EvidenceRulesBlock struct {
	MinStrength string `yaml:"min_strength"`
}

// ReplayBlock configures replay strictness and ledger retention.
type ReplayBlock struct {
	StrictRequired bool `yaml:"strict_required"`
	RetentionYears int  `yaml:"retention_years"`
}

// ResiliencePolicyBlock mirrors pkg/resilience's RecoveryConfig,
// DampingConfig, and VerifierConfig, plus the two toggles spec.md names
// that have no direct resilience-package field: adaptive tuning and
// human override.
type ResiliencePolicyBlock struct {
	TSIMin                  float64         `yaml:"tsi_min"`
	TSITarget               float64         `yaml:"tsi_target"`
	LatencyBudgetMS         float64         `yaml:"latency_budget_ms"`
	CostBudget              float64         `yaml:"cost_budget"`
	DiversityWeight         float64         `yaml:"diversity_weight"`
	LatencyPenaltyWeight    float64         `yaml:"latency_penalty_weight"`
	CostPenaltyWeight       float64         `yaml:"cost_penalty_weight"`
	ConfidencePenaltyWeight float64         `yaml:"confidence_penalty_weight"`
	OscillationPenaltyWeight float64        `yaml:"oscillation_penalty_weight"`
	PID                     PIDBlock        `yaml:"pid"`
	MinTSIImprovement       float64         `yaml:"min_tsi_improvement"`
	MaxTSIDegradation       float64         `yaml:"max_tsi_degradation"`
	AdaptiveTuning          bool            `yaml:"adaptive_tuning"`
	HumanOverride           bool            `yaml:"human_override"`
	AuditEventTypes         []string        `yaml:"audit_event_types"`
}

// PIDBlock holds the damping stabilizer's gains.
type PIDBlock struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// Document is the full governance DSL document (spec.md §6 "Policy file
// (governance DSL)"). Unknown or missing fields default; Validate
// reports shape errors as strings without ever failing to parse.
type Document struct {
	PolicyID        string                `yaml:"policy_id"`
	PolicyVersion   string                `yaml:"policy_version"`
	Consensus       ConsensusBlock        `yaml:"consensus"`
	Challenger      ChallengerBlock       `yaml:"challenger"`
	EvidenceRules   EvidenceRulesBlock    `yaml:"evidence_rules"`
	Replay          ReplayBlock           `yaml:"replay"`
	ResiliencePolicy ResiliencePolicyBlock `yaml:"resilience_policy"`
}

// Load parses a policy document from raw YAML/JSON bytes (YAML is a
// JSON superset, so one parser covers both, per spec.md's "YAML/JSON
// policy" phrasing). Malformed bytes are a hard error; a well-formed but
// incomplete document is never an error here — call Validate for shape
// diagnostics.
func Load(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: parse document: %w", err)
	}
	return &doc, nil
}

// LoadFile reads and parses a policy document from path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Load(data)
}

var validMinStrengths = map[string]bool{"weak": true, "moderate": true, "strong": true, "": true}

// Validate returns a list of shape-validation error strings. An empty
// slice means the document is well-formed; a non-empty slice is never
// fatal by itself — spec.md: "invalid shapes yield a list of validation
// error strings without aborting the server."
func (d *Document) Validate() []string {
	var errs []string

	if d.PolicyID == "" {
		errs = append(errs, "policy_id is required")
	}
	if d.PolicyVersion == "" {
		errs = append(errs, "policy_version is required")
	}
	if d.Consensus.Primary.Provider == "" {
		errs = append(errs, "consensus.primary.provider is required")
	}
	if d.Consensus.MaxRepairAttempts < 0 {
		errs = append(errs, "consensus.max_repair_attempts must be >= 0")
	}
	if d.Consensus.EnableDebate && d.Consensus.Debate == nil {
		errs = append(errs, "consensus.enable_debate is true but consensus.debate is absent")
	}
	if d.Challenger.DisagreementThreshold < 0 || d.Challenger.DisagreementThreshold > 1 {
		errs = append(errs, "challenger.disagreement_threshold must be within [0,1]")
	}
	if !validMinStrengths[d.EvidenceRules.MinStrength] {
		errs = append(errs, fmt.Sprintf("evidence_rules.min_strength %q is not one of weak/moderate/strong", d.EvidenceRules.MinStrength))
	}
	if d.Replay.RetentionYears < 0 {
		errs = append(errs, "replay.retention_years must be >= 0")
	}
	if d.ResiliencePolicy.TSIMin > d.ResiliencePolicy.TSITarget && d.ResiliencePolicy.TSITarget != 0 {
		errs = append(errs, "resilience_policy.tsi_min must not exceed resilience_policy.tsi_target")
	}

	return errs
}
