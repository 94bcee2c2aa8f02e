package epack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePack() map[string]any {
	return map[string]any{
		"decision_object": map[string]any{
			"routing": map[string]any{"mode": "BOUND"},
			"output":  map[string]any{"final_text_hash": "sha256:abc"},
		},
		"prompt_text": "do the thing",
	}
}

func TestBuildTree_ProofVerifies(t *testing.T) {
	tree, err := BuildTree(samplePack())
	require.NoError(t, err)
	require.NotEmpty(t, tree.Root)

	for _, leaf := range tree.Leaves {
		proof, err := tree.Proof(leaf.Path)
		require.NoError(t, err)
		require.True(t, VerifyProof(*proof, tree.Root), "proof for %s should verify", leaf.Path)
	}
}

func TestBuildTree_OddLeafCountDuplicatesLast(t *testing.T) {
	tree, err := BuildTree(map[string]any{"a": "1", "b": "2", "c": "3"})
	require.NoError(t, err)
	require.Len(t, tree.Leaves, 3)
	proof, err := tree.Proof(tree.Leaves[0].Path)
	require.NoError(t, err)
	require.True(t, VerifyProof(*proof, tree.Root))
}

func TestDeriveView_FailsClosedOnUnmatchedPath(t *testing.T) {
	pack := samplePack()
	tree, err := BuildTree(pack)
	require.NoError(t, err)

	policy := ViewPolicy{
		PolicyID: "public-evidence-v1",
		Rules: []DisclosureRule{
			{PathPattern: "/decision_object/routing/*", Action: Disclose},
		},
	}

	view, err := DeriveView(pack, tree, policy)
	require.NoError(t, err)

	require.Contains(t, view.Disclosed, "/decision_object/routing/mode")
	require.NotContains(t, view.Disclosed, "/prompt_text")

	var sawPromptSealed bool
	for _, s := range view.Sealed {
		if s.Path == "/prompt_text" {
			sawPromptSealed = true
		}
	}
	require.True(t, sawPromptSealed, "unmatched path must default to SEAL")
}

func TestDeriveView_IsDeterministic(t *testing.T) {
	pack := samplePack()
	tree, err := BuildTree(pack)
	require.NoError(t, err)
	policy := ViewPolicy{
		PolicyID: "public-evidence-v1",
		Rules: []DisclosureRule{
			{PathPattern: "/decision_object/*", Action: Disclose},
		},
	}

	v1, err := DeriveView(pack, tree, policy)
	require.NoError(t, err)
	v2, err := DeriveView(pack, tree, policy)
	require.NoError(t, err)
	require.Equal(t, v1.ViewHash, v2.ViewHash)
}
