package epack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

func sampleDecision() *Decision {
	return &Decision{
		Identity: Identity{DecisionID: "dec-1", CreatedAt: time.Unix(1700000000, 0).UTC()},
		Context:  Context{SessionID: "sess-1", Profile: ProfileStandard},
		Input:    Input{PromptHash: "sha256:abc"},
		Routing:  Routing{Mode: ModeBound, Strategy: "single"},
		Policy:   Policy{PolicyID: "pol-1", PolicyHash: "sha256:def"},
		Output:   Output{FinalTextHash: "sha256:ghi", Confidence: 0.9},
		Build:    Build{Kernel: "ecosphere", KernelVersion: "0.1.0"},
	}
}

func TestDecision_SealThenVerify(t *testing.T) {
	d := sampleDecision()
	hash, err := d.Seal(canonicalize.SHA256)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	ok, err := d.VerifySeal()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDecision_MutationBreaksSeal(t *testing.T) {
	d := sampleDecision()
	_, err := d.Seal(canonicalize.SHA256)
	require.NoError(t, err)

	d.Output.Confidence = 0.1

	ok, err := d.VerifySeal()
	require.NoError(t, err)
	require.False(t, ok, "mutating any field after sealing must invalidate the seal")
}

func TestDecision_SealIsDeterministic(t *testing.T) {
	a := sampleDecision()
	b := sampleDecision()

	ha, err := a.Seal(canonicalize.SHA256)
	require.NoError(t, err)
	hb, err := b.Seal(canonicalize.SHA256)
	require.NoError(t, err)

	require.Equal(t, ha, hb)
}
