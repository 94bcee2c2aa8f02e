package canonicalize

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTaggedHash_FormatsAlgoPrefix(t *testing.T) {
	for _, algo := range []Algorithm{SHA256, SHA384, SHA512} {
		tagged, err := TaggedHash(algo, []byte("payload"))
		if err != nil {
			t.Fatalf("TaggedHash(%s): %v", algo, err)
		}
		if !strings.HasPrefix(tagged, string(algo)+":") {
			t.Errorf("expected prefix %s:, got %s", algo, tagged)
		}
	}
}

func TestTaggedHash_UnsupportedAlgorithm(t *testing.T) {
	if _, err := TaggedHash("md5", []byte("x")); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

// Property: key order and whitespace in the serialized form never affect the hash.
func TestCanonicalTaggedHash_KeyOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("map key insertion order does not change the canonical hash", prop.ForAll(
		func(a, b, c string) bool {
			m1 := map[string]interface{}{"a": a, "b": b, "c": c}
			m2 := map[string]interface{}{"c": c, "b": b, "a": a}

			h1, err1 := CanonicalTaggedHash(SHA256, m1)
			h2, err2 := CanonicalTaggedHash(SHA256, m2)
			if err1 != nil || err2 != nil {
				return err1 == err2
			}
			return h1 == h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
