package validator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

func TestExtractRegions_FindsFencedBlock(t *testing.T) {
	text := "here is code:\n```go\nfunc main() {}\n```\nthanks"
	regions := ExtractRegions(text)
	require.Len(t, regions, 1)
	require.Contains(t, regions[0].Path, "/protected/fence/")
}

func TestExtractRegions_FindsNestedJSONBlocks(t *testing.T) {
	text := `{"outer": {"inner": 1}}`
	regions := ExtractRegions(text)
	require.Len(t, regions, 2)
}

func TestCheckProtectedRegions_PassesWhenUnchanged(t *testing.T) {
	user := "please review this: ```go\nfunc f() {}\n```"
	assistant := "sure, here is your code back: ```go\nfunc f() {}\n```\ndone."
	pass, _, err := CheckProtectedRegions(user, assistant, canonicalize.SHA256)
	require.NoError(t, err)
	require.True(t, pass)
}

func TestCheckProtectedRegions_FailsWhenRewritten(t *testing.T) {
	user := "please review this: ```go\nfunc f() {}\n```"
	assistant := "sure, here is your code: ```go\nfunc f() { return }\n```\ndone."
	pass, reason, err := CheckProtectedRegions(user, assistant, canonicalize.SHA256)
	require.NoError(t, err)
	require.False(t, pass)
	require.NotEmpty(t, reason)
}

func TestCheckProtectedRegions_NoRegionsAlwaysPasses(t *testing.T) {
	pass, _, err := CheckProtectedRegions("no blocks here", "still none", canonicalize.SHA256)
	require.NoError(t, err)
	require.True(t, pass)
}
