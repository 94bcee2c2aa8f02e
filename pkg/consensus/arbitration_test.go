package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArbitrate_CleanPassThrough(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionPass, ChallengerAction: ActionPass, RoleLevel: 3})
	require.Equal(t, ActionPass, v.Action)
}

func TestArbitrate_ChallengerRefuseDowngradedForHighRole(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionPass, ChallengerAction: ActionRefuse, RoleLevel: 3})
	require.Equal(t, ActionRewrite, v.Action)
}

func TestArbitrate_ChallengerRefuseEnforcedForLowRole(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionPass, ChallengerAction: ActionRefuse, RoleLevel: 1})
	require.Equal(t, ActionRefuse, v.Action)
}

func TestArbitrate_ChallengerRefuseEnforcedEvenWithGateRewrite(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionRewrite, ChallengerAction: ActionRefuse, RoleLevel: 3})
	require.Equal(t, ActionRefuse, v.Action)
}

func TestArbitrate_HighRiskClaimLowRoleUpgrades(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionPass, ChallengerAction: ActionPass, RoleLevel: 1, HighRiskClaim: true})
	require.Equal(t, ActionRewrite, v.Action)
}

func TestArbitrate_ConflictsHighStakesUpgrades(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionPass, ChallengerAction: ActionPass, RoleLevel: 3, ConflictsHighStakes: true})
	require.Equal(t, ActionRewrite, v.Action)
}

func TestArbitrate_MissingEvidenceHighStakesUpgrades(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionPass, ChallengerAction: ActionPass, RoleLevel: 3, MissingEvidenceHighStakes: true})
	require.Equal(t, ActionRewrite, v.Action)
}

func TestArbitrate_ChallengerRewriteUpgradesPass(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionPass, ChallengerAction: ActionRewrite, RoleLevel: 3})
	require.Equal(t, ActionRewrite, v.Action)
}

func TestArbitrate_NeverDowngradesGateRefuse(t *testing.T) {
	v := Arbitrate(ChallengePack{GateAction: ActionRefuse, ChallengerAction: ActionPass, RoleLevel: 3})
	require.Equal(t, ActionRefuse, v.Action)
}
