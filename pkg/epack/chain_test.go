package epack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

func buildChain(t *testing.T, n int) []Record {
	t.Helper()
	b := NewBuilder(canonicalize.SHA256)
	manifest := BuildManifest{Kernel: "ecosphere", KernelVersion: "0.1.0"}
	require.NoError(t, manifest.Seal(canonicalize.SHA256))

	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		d := sampleDecision()
		rec, err := b.Seal(d, manifest, nil)
		require.NoError(t, err)
		records = append(records, *rec)
	}
	return records
}

func TestVerifyChain_AcceptsWellFormedChain(t *testing.T) {
	records := buildChain(t, 4)
	require.NoError(t, VerifyChain(records, canonicalize.SHA256))
}

func TestVerifyChain_DetectsBrokenLink(t *testing.T) {
	records := buildChain(t, 3)
	records[2].PrevHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

	err := VerifyChain(records, canonicalize.SHA256)
	require.Error(t, err)
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	require.Equal(t, 2, linkErr.Index)
}

func TestVerifyChain_DetectsSingleFieldMutation(t *testing.T) {
	records := buildChain(t, 3)
	records[1].Payload["decision_hash"] = "sha256:tampered"

	err := VerifyChain(records, canonicalize.SHA256)
	require.Error(t, err)
}
