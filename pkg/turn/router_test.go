package turn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/epack"
	"github.com/bulwark-run/ecosphere/pkg/safety"
)

func TestRoute_UnsafeAlwaysBound(t *testing.T) {
	iv := safety.InputVector{Safe: false, RequiresReflect: true, RequiresScaffold: true}
	require.Equal(t, epack.ModeBound, Route(iv, true, true, true))
}

func TestRoute_ReflectRequiredBeforeConfirmation(t *testing.T) {
	iv := safety.InputVector{Safe: true, RequiresReflect: true}
	require.Equal(t, epack.ModeReflect, Route(iv, false, false, false))
}

func TestRoute_ScaffoldRequiresReflectConfirmedFirst(t *testing.T) {
	iv := safety.InputVector{Safe: true, RequiresReflect: true, RequiresScaffold: true}
	// reflect not yet confirmed: rule 2 fires first, not rule 3.
	require.Equal(t, epack.ModeReflect, Route(iv, false, false, false))
	require.Equal(t, epack.ModeScaffold, Route(iv, true, false, false))
	require.Equal(t, epack.ModeTDM, Route(iv, true, true, false))
}

func TestRoute_HighStakesDefersWithoutBelief(t *testing.T) {
	iv := safety.InputVector{Safe: true, Domain: safety.DomainHighStakes}
	require.Equal(t, epack.ModeDefer, Route(iv, true, true, false))
	require.Equal(t, epack.ModeTDM, Route(iv, true, true, true))
}

func TestRoute_DefaultIsTDM(t *testing.T) {
	iv := safety.InputVector{Safe: true, Domain: safety.DomainGeneral}
	require.Equal(t, epack.ModeTDM, Route(iv, true, true, true))
}

func TestIsRevisionIntent(t *testing.T) {
	require.True(t, IsRevisionIntent("actually, let's change the approach"))
	require.False(t, IsRevisionIntent("yes, confirmed"))
}

func TestClassifyGateReply_AcceptWithoutBinding(t *testing.T) {
	kind, _ := ClassifyGateReply("yes, confirm", false)
	require.Equal(t, GateReplyUnboundAccept, kind)
}

func TestClassifyGateReply_BoundRequiresToken(t *testing.T) {
	kind, _ := ClassifyGateReply("confirm", true)
	require.Equal(t, GateReplyMissingToken, kind)

	kind, token := ClassifyGateReply("confirm token: ab12", true)
	require.Equal(t, GateReplyBoundAccept, kind)
	require.Equal(t, "ab12", token)
}

func TestClassifyGateReply_Rejected(t *testing.T) {
	kind, _ := ClassifyGateReply("no, cancel that", false)
	require.Equal(t, GateReplyRejected, kind)
}

func TestClassifyGateReply_Unknown(t *testing.T) {
	kind, _ := ClassifyGateReply("what's the weather like", false)
	require.Equal(t, GateReplyUnknown, kind)
}

func TestToolPrefix(t *testing.T) {
	tool, args, ok := ToolPrefix("calc: 1 + 2")
	require.True(t, ok)
	require.Equal(t, "calc", tool)
	require.Equal(t, "1 + 2", args)

	_, _, ok = ToolPrefix("what is 1 + 2")
	require.False(t, ok)
}
