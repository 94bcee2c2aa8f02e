package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckEvidenceGate_RequiresCitationsOnTrigger(t *testing.T) {
	out := &Output{Text: "Studies show this works well."}
	pass, reason := CheckEvidenceGate(out, true)
	require.False(t, pass)
	require.NotEmpty(t, reason)
}

func TestCheckEvidenceGate_PassesWithCitations(t *testing.T) {
	out := &Output{
		Text: "Studies show this works well.",
		Citations: []Citation{{
			Title: "X", AuthorsOrOrg: "Y", Year: 2020,
			SourceType: "peer_reviewed", EvidenceStrength: "strong", VerificationStatus: "verified",
		}},
	}
	pass, _ := CheckEvidenceGate(out, true)
	require.True(t, pass)
}

func TestCheckEvidenceGate_OffWhenRequirementDisabled(t *testing.T) {
	out := &Output{Text: "Studies show this works well."}
	pass, _ := CheckEvidenceGate(out, false)
	require.True(t, pass)
}

func TestCheckEvidenceGate_NoTriggerNoRequirement(t *testing.T) {
	out := &Output{Text: "Here is a simple recipe for banana bread."}
	pass, _ := CheckEvidenceGate(out, true)
	require.True(t, pass)
}
