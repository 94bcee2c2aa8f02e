package epack

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// Merkle leaf/node domain-separation prefixes, fixed for the life of the
// chain — changing them would silently change every commitment.
const (
	leafPrefix = "ecosphere:epack:leaf:v1"
	nodePrefix = "ecosphere:epack:node:v1"
)

// Leaf is one path/value commitment in a payload's Merkle tree.
type Leaf struct {
	Path     string `json:"path"`
	LeafHash string `json:"leaf_hash"`
}

// Tree is a Merkle tree over a payload's flattened path/value pairs,
// supporting selective-disclosure views with inclusion proofs. Grounded on
// the teacher's pkg/kernel/merkle.go, generalized from "EvidencePack" to any
// EPACK payload and rebased onto canonicalize.JCS for leaf value encoding.
type Tree struct {
	Leaves []Leaf     `json:"leaves"`
	Root   string     `json:"root"`
	levels [][]string // internal node hashes by level, leaves first
}

// InclusionProof demonstrates a leaf's membership under Root.
type InclusionProof struct {
	LeafPath  string      `json:"leaf_path"`
	LeafHash  string      `json:"leaf_hash"`
	Root      string      `json:"root"`
	ProofPath []ProofStep `json:"proof_path"`
}

// ProofStep is one sibling hash on the path from a leaf to the root.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R": which side the sibling sits on
	SiblingHash string `json:"sibling_hash"`
}

// BuildTree constructs a Merkle tree over a payload's flattened
// path → value pairs. Leaves are sorted lexicographically by JSON-pointer
// path before the tree is built, so the same logical payload always yields
// the same root regardless of map iteration order.
func BuildTree(obj map[string]any) (*Tree, error) {
	flat := flatten(obj, "")

	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	leaves := make([]Leaf, len(paths))
	for i, path := range paths {
		canonical, err := canonicalize.JCS(flat[path])
		if err != nil {
			return nil, fmt.Errorf("epack: canonicalize leaf %s: %w", path, err)
		}
		leaves[i] = Leaf{Path: path, LeafHash: leafHash(path, canonical)}
	}

	tree := &Tree{Leaves: leaves}
	if len(leaves) == 0 {
		tree.Root = sha256Hex(nil)
		return tree, nil
	}

	level := make([]string, len(leaves))
	for i, l := range leaves {
		level[i] = l.LeafHash
	}
	tree.levels = [][]string{level}

	for len(level) > 1 {
		level = nextLevel(level)
		tree.levels = append(tree.levels, level)
	}
	tree.Root = level[0]
	return tree, nil
}

func flatten(obj any, prefix string) map[string]any {
	out := make(map[string]any)
	switch v := obj.(type) {
	case map[string]any:
		for k, val := range v {
			childPath := prefix + "/" + k
			switch inner := val.(type) {
			case map[string]any:
				for p, vv := range flatten(inner, childPath) {
					out[p] = vv
				}
			case []any:
				for i, elem := range inner {
					elemPath := fmt.Sprintf("%s/%d", childPath, i)
					if nested, ok := elem.(map[string]any); ok {
						for p, vv := range flatten(nested, elemPath) {
							out[p] = vv
						}
					} else {
						out[elemPath] = elem
					}
				}
			default:
				out[childPath] = val
			}
		}
	default:
		if prefix != "" {
			out[prefix] = obj
		}
	}
	return out
}

func leafHash(path string, canonicalValue []byte) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(path)
	buf.WriteByte(0)
	buf.Write(canonicalValue)
	return sha256Hex(buf.Bytes())
}

func nextLevel(level []string) []string {
	if len(level)%2 == 1 {
		level = append(level, level[len(level)-1])
	}
	out := make([]string, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		out[i/2] = nodeHash(level[i], level[i+1])
	}
	return out
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(rawBytes(left))
	buf.Write(rawBytes(right))
	return sha256Hex(buf.Bytes())
}

// Proof returns an inclusion proof for a given leaf path.
func (t *Tree) Proof(path string) (*InclusionProof, error) {
	idx := -1
	for i, l := range t.Leaves {
		if l.Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("epack: path %q not present in tree", path)
	}

	proof := &InclusionProof{LeafPath: path, LeafHash: t.Leaves[idx].LeafHash, Root: t.Root}
	cur := idx
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		var sibIdx int
		var side string
		if cur%2 == 0 {
			sibIdx = cur + 1
			if sibIdx >= len(nodes) {
				sibIdx = cur
			}
			side = "R"
		} else {
			sibIdx = cur - 1
			side = "L"
		}
		proof.ProofPath = append(proof.ProofPath, ProofStep{Side: side, SiblingHash: nodes[sibIdx]})
		cur /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the root implied by a proof and compares it to
// expectedRoot.
func VerifyProof(proof InclusionProof, expectedRoot string) bool {
	cur := proof.LeafHash
	for _, step := range proof.ProofPath {
		if step.Side == "L" {
			cur = nodeHash(step.SiblingHash, cur)
		} else {
			cur = nodeHash(cur, step.SiblingHash)
		}
	}
	return cur == expectedRoot
}

// DisclosureAction is how a view policy treats a leaf path.
type DisclosureAction string

const (
	Disclose DisclosureAction = "DISCLOSE"
	Seal     DisclosureAction = "SEAL"
	RedactOut DisclosureAction = "REDACT"
)

// DisclosureRule maps a glob-style path pattern to a DisclosureAction.
type DisclosureRule struct {
	PathPattern string           `json:"path_pattern"`
	Action      DisclosureAction `json:"action"`
	Reason      string           `json:"reason,omitempty"`
}

// ViewPolicy is a named, ordered set of DisclosureRules; unmatched paths
// default to SEAL (fail-closed disclosure).
type ViewPolicy struct {
	PolicyID string           `json:"policy_id"`
	Rules    []DisclosureRule `json:"rules"`
}

// SealedField is a commitment to a value that was not disclosed in a view.
type SealedField struct {
	Path       string `json:"path"`
	Commitment string `json:"commitment"`
	Reason     string `json:"reason,omitempty"`
}

// View is a derived, selectively-disclosed projection of an EPACK payload.
// Per spec.md's redaction requirement, the same (payload, policy) pair must
// always yield an identical View.
type View struct {
	ViewID     string            `json:"view_id"`
	PackRoot   string            `json:"epack_root"`
	PolicyID   string            `json:"view_policy_id"`
	Disclosed  map[string]any    `json:"disclosed"`
	Sealed     []SealedField     `json:"sealed"`
	Proofs     []InclusionProof  `json:"proofs"`
	ViewHash   string            `json:"view_hash"`
}

// DeriveView builds a View from a payload and its Tree under policy.
func DeriveView(pack map[string]any, tree *Tree, policy ViewPolicy) (*View, error) {
	view := &View{
		ViewID:    sha256Hex([]byte(tree.Root + ":" + policy.PolicyID))[:16],
		PackRoot:  tree.Root,
		PolicyID:  policy.PolicyID,
		Disclosed: make(map[string]any),
	}

	for _, leaf := range tree.Leaves {
		action, reason := matchPolicy(leaf.Path, policy)
		switch action {
		case Disclose:
			view.Disclosed[leaf.Path] = valueAtPath(pack, leaf.Path)
			proof, err := tree.Proof(leaf.Path)
			if err != nil {
				return nil, err
			}
			view.Proofs = append(view.Proofs, *proof)
		case Seal:
			view.Sealed = append(view.Sealed, SealedField{Path: leaf.Path, Commitment: leaf.LeafHash, Reason: reason})
		case RedactOut:
			// omitted entirely
		}
	}

	sort.Slice(view.Sealed, func(i, j int) bool { return view.Sealed[i].Path < view.Sealed[j].Path })
	sort.Slice(view.Proofs, func(i, j int) bool { return view.Proofs[i].LeafPath < view.Proofs[j].LeafPath })

	canonical, err := canonicalize.JCS(view)
	if err != nil {
		return nil, err
	}
	view.ViewHash = sha256Hex(canonical)
	return view, nil
}

func matchPolicy(path string, policy ViewPolicy) (DisclosureAction, string) {
	for _, r := range policy.Rules {
		if matchGlob(path, r.PathPattern) {
			return r.Action, r.Reason
		}
	}
	return Seal, "no matching disclosure rule (fail-closed)"
}

func matchGlob(path, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "/*")+"/")
	}
	return path == pattern
}

func valueAtPath(obj map[string]any, path string) any {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	var cur any = obj
	for _, part := range parts {
		if part == "" {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

func rawBytes(s string) []byte {
	s = strings.TrimPrefix(s, "sha256:")
	b, _ := hex.DecodeString(s)
	return b
}
