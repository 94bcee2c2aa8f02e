package consensus

// ChallengePack bundles everything the Arbiter needs to render a final
// verdict for one two-stage debate run (spec.md §4.4.3).
type ChallengePack struct {
	GateAction        Action // the scope gate's verdict on the synthesized answer
	ChallengerAction  Action // Challenger/Critic's own recommended action
	RoleLevel         int
	HighRiskClaim     bool // any claim in the output carries a high-risk flag
	ConflictsHighStakes bool // defender/critic conflict and domain is HIGH_STAKES
	MissingEvidenceHighStakes bool // evidence level E0/E1 on a HIGH_STAKES turn
	RewritePrompt     string
}

// ArbitrationVerdict is the Arbiter's final decision.
type ArbitrationVerdict struct {
	Action Action
	Reason string
}

// Arbitrate applies the fixed rule table from spec.md §4.4.3. Action
// order is fixed (PASS < REWRITE < REFUSE); every row can only upgrade
// the action, never downgrade it, except the explicit Challenger-REFUSE
// downgrade for high-role callers.
func Arbitrate(pack ChallengePack) ArbitrationVerdict {
	action := pack.GateAction
	reason := "scope gate verdict"

	if pack.ChallengerAction == ActionRefuse {
		if pack.RoleLevel >= 3 && pack.GateAction == ActionPass {
			return ArbitrationVerdict{Action: ActionRewrite, Reason: "challenger refused; downgraded to rewrite with expert caveat for role level >= 3"}
		}
		return ArbitrationVerdict{Action: ActionRefuse, Reason: "challenger refused"}
	}

	if pack.HighRiskClaim && pack.RoleLevel < 2 {
		action = Max(action, ActionRewrite)
		reason = "high-risk claim with role level < 2"
	}

	if pack.ConflictsHighStakes {
		action = Max(action, ActionRewrite)
		reason = "defender/critic conflict on a high-stakes turn"
	}

	if pack.MissingEvidenceHighStakes {
		action = Max(action, ActionRewrite)
		reason = "missing evidence on a high-stakes turn, reframe to E1-safe"
	}

	if pack.ChallengerAction == ActionRewrite && action == ActionPass {
		action = ActionRewrite
		reason = "challenger recommended rewrite"
	}

	return ArbitrationVerdict{Action: action, Reason: reason}
}
