package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFASTPreset_NoValidatorsOneRepair(t *testing.T) {
	cfg := FASTPreset(ModelSpec{Provider: "stub", Model: "m"}, PromptTemplate{})
	require.Empty(t, cfg.Validators)
	require.Equal(t, 1, cfg.MaxRepairAttempts)
}

func TestHighAssurancePreset_CapsValidatorsAtTwo(t *testing.T) {
	validators := []ModelSpec{{Model: "a"}, {Model: "b"}, {Model: "c"}}
	cfg := HighAssurancePreset(ModelSpec{Model: "primary"}, validators, nil, PromptTemplate{})
	require.Len(t, cfg.Validators, 2)
}

func TestConsensusPreset_CapsValidatorsAtThree(t *testing.T) {
	validators := []ModelSpec{{Model: "a"}, {Model: "b"}, {Model: "c"}, {Model: "d"}}
	cfg := ConsensusPreset(ModelSpec{Model: "primary"}, validators, nil, PromptTemplate{})
	require.Len(t, cfg.Validators, 3)
}

func TestPresetForRole_RoutesByRoleLevel(t *testing.T) {
	primary := ModelSpec{Model: "primary"}
	require.Equal(t, "FAST", PresetForRole(VerificationContext{RoleLevel: 0}, primary, nil, nil, PromptTemplate{}).Profile)
	require.Equal(t, "HIGH_ASSURANCE", PresetForRole(VerificationContext{RoleLevel: 2}, primary, nil, nil, PromptTemplate{}).Profile)
	require.Equal(t, "CONSENSUS", PresetForRole(VerificationContext{RoleLevel: 3}, primary, nil, nil, PromptTemplate{}).Profile)
}
