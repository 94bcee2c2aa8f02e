package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validPolicyYAML = `
policy_id: default
policy_version: 1.0.0
consensus:
  primary:
    provider: openai
    model: gpt-test
  max_repair_attempts: 2
  enable_debate: false
challenger:
  disagreement_threshold: 0.4
  trigger_domains: [HIGH_STAKES]
evidence_rules:
  min_strength: moderate
replay:
  strict_required: true
  retention_years: 3
resilience_policy:
  tsi_min: 0.55
  tsi_target: 0.80
`

func TestLoad_ParsesWellFormedDocument(t *testing.T) {
	doc, err := Load([]byte(validPolicyYAML))
	require.NoError(t, err)
	require.Equal(t, "default", doc.PolicyID)
	require.Equal(t, "openai", doc.Consensus.Primary.Provider)
	require.Equal(t, 2, doc.Consensus.MaxRepairAttempts)
	require.Empty(t, doc.Validate())
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	_, err := Load([]byte("policy_id: [unterminated"))
	require.Error(t, err)
}

func TestValidate_MissingRequiredFieldsReportedNotFatal(t *testing.T) {
	doc, err := Load([]byte(`{}`))
	require.NoError(t, err)

	errs := doc.Validate()
	require.NotEmpty(t, errs)
	require.Contains(t, errs, "policy_id is required")
	require.Contains(t, errs, "policy_version is required")
}

func TestValidate_EnableDebateWithoutDebateBlock(t *testing.T) {
	doc, err := Load([]byte(`
policy_id: p
policy_version: "1"
consensus:
  primary:
    provider: openai
    model: m
  enable_debate: true
evidence_rules:
  min_strength: weak
`))
	require.NoError(t, err)
	require.Contains(t, doc.Validate(), "consensus.enable_debate is true but consensus.debate is absent")
}

func TestValidate_BadEvidenceStrengthReported(t *testing.T) {
	doc, err := Load([]byte(`
policy_id: p
policy_version: "1"
consensus:
  primary: {provider: openai, model: m}
evidence_rules:
  min_strength: extreme
`))
	require.NoError(t, err)
	found := false
	for _, e := range doc.Validate() {
		if e == `evidence_rules.min_strength "extreme" is not one of weak/moderate/strong` {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidate_ResilienceTargetsInconsistent(t *testing.T) {
	doc, err := Load([]byte(`
policy_id: p
policy_version: "1"
consensus:
  primary: {provider: openai, model: m}
evidence_rules:
  min_strength: weak
resilience_policy:
  tsi_min: 0.9
  tsi_target: 0.5
`))
	require.NoError(t, err)
	require.Contains(t, doc.Validate(), "resilience_policy.tsi_min must not exceed resilience_policy.tsi_target")
}
