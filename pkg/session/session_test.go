package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/epack"
)

func TestNew_StartsAtFastProfileWithGenesisHead(t *testing.T) {
	s, err := New("sess-1")
	require.NoError(t, err)
	require.Equal(t, epack.ProfileFast, s.CurrentProfile)
	require.Equal(t, epack.Genesis, s.EpackPrevHash)
	require.NotEmpty(t, s.Secret())
}

func TestEscalate_NeverExceedsHighAssurance(t *testing.T) {
	s, _ := New("sess-1")
	s.Escalate()
	require.Equal(t, epack.ProfileStandard, s.CurrentProfile)
	s.Escalate()
	require.Equal(t, epack.ProfileHighAssurance, s.CurrentProfile)
	s.Escalate()
	require.Equal(t, epack.ProfileHighAssurance, s.CurrentProfile)
}

func TestDeEscalate_NeverBelowFast(t *testing.T) {
	s, _ := New("sess-1")
	s.DeEscalate()
	require.Equal(t, epack.ProfileFast, s.CurrentProfile)
}

func TestObserveValidation_EscalatesOnTwoFailures(t *testing.T) {
	s, _ := New("sess-1")
	escalate, deescalate := s.ObserveValidation(2)
	require.True(t, escalate)
	require.False(t, deescalate)
}

func TestObserveValidation_DeescalatesAfterCleanStreak(t *testing.T) {
	s, _ := New("sess-1")
	var deescalate bool
	for i := 0; i < cleanStreakThreshold; i++ {
		_, deescalate = s.ObserveValidation(0)
	}
	require.True(t, deescalate)
}

func TestWorkflowQueue_FIFO(t *testing.T) {
	s, _ := New("sess-1")
	s.EnqueueWorkflow("SCAFFOLD")
	s.EnqueueWorkflow("TDM")

	step, ok := s.DequeueWorkflow()
	require.True(t, ok)
	require.Equal(t, "SCAFFOLD", step)

	step, ok = s.DequeueWorkflow()
	require.True(t, ok)
	require.Equal(t, "TDM", step)

	_, ok = s.DequeueWorkflow()
	require.False(t, ok)
}

func TestRecordTrace_BoundedTail(t *testing.T) {
	s, _ := New("sess-1")
	for i := 0; i < traceCapacity+10; i++ {
		s.RecordTrace("turn", nil)
	}
	require.Len(t, s.Trace(), traceCapacity)
}
