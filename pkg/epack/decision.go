// Package epack implements the Decision Object and the hash-chained
// Evidence PACKet (EPACK) record that seals every governed turn.
//
// Grounded on the teacher's pkg/ledger (hash-chained entries) and
// pkg/kernel/merkle.go (canonical leaf/node hashing), generalized from a
// generic append-only ledger into the specific self-sealing Decision
// Object this kernel commits per turn.
package epack

import (
	"fmt"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// Mode is the routing decision taken for a turn.
type Mode string

const (
	ModeBound   Mode = "BOUND"
	ModeReflect Mode = "REFLECT"
	ModeScaffold Mode = "SCAFFOLD"
	ModeDefer   Mode = "DEFER"
	ModeTDM     Mode = "TDM"
)

// Profile is the governance assurance tier.
type Profile string

const (
	ProfileFast          Profile = "FAST"
	ProfileStandard      Profile = "STANDARD"
	ProfileHighAssurance Profile = "HIGH_ASSURANCE"
)

// Attachment describes an auxiliary input artifact referenced by hash only.
type Attachment struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Kind string `json:"kind,omitempty"`
}

// Identity fields of a Decision Object.
type Identity struct {
	DecisionID string    `json:"decision_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Context fields of a Decision Object.
type Context struct {
	SessionID   string  `json:"session_id"`
	WorkspaceID string  `json:"workspace_id,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	Profile     Profile `json:"profile"`
}

// Input fields of a Decision Object.
type Input struct {
	PromptHash  string       `json:"prompt_hash"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Routing fields of a Decision Object.
type Routing struct {
	Mode      Mode     `json:"mode"`
	Strategy  string   `json:"strategy,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

// Policy fields of a Decision Object.
type Policy struct {
	PolicyID           string   `json:"policy_id"`
	PolicyHash         string   `json:"policy_hash"`
	Profile            Profile  `json:"profile"`
	ConstraintsApplied []string `json:"constraints_applied,omitempty"`
}

// Output fields of a Decision Object.
type Output struct {
	FinalTextHash string   `json:"final_text_hash"`
	FinalFormat   string   `json:"final_format,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	Dissent       []string `json:"dissent,omitempty"`
}

// Integrity fields of a Decision Object. CanonicalPayloadHash is the
// self-referential seal: it is the canonical hash of the object with this
// very field held at the empty string.
type Integrity struct {
	CanonicalPayloadHashAlg canonicalize.Algorithm `json:"canonical_payload_hash_alg"`
	CanonicalPayloadHash    string                 `json:"canonical_payload_hash"`
	PrevDecisionHash        string                 `json:"prev_decision_hash,omitempty"`
	EpackBlockHash          string                 `json:"epack_block_hash,omitempty"`
}

// Build fields of a Decision Object.
type Build struct {
	Kernel        string `json:"kernel"`
	KernelVersion string `json:"kernel_version"`
	ManifestHash  string `json:"manifest_hash"`
}

// Decision is the canonical, self-sealed description of a governed turn.
// Exactly one is produced per turn and committed into an EPACK record.
type Decision struct {
	Identity
	Context
	Input
	Routing
	Policy
	Stages map[string]any `json:"stages,omitempty"`
	Output
	Integrity
	Build
}

// Seal computes CanonicalPayloadHash and writes it back into the object.
// Per spec.md §3: the object is first populated with CanonicalPayloadHash
// set to the empty string, then its canonical-JSON hash is computed and
// written back into that field — the self-referential seal.
func (d *Decision) Seal(algo canonicalize.Algorithm) (string, error) {
	if algo == "" {
		algo = canonicalize.DefaultAlgorithm
	}
	d.Integrity.CanonicalPayloadHashAlg = algo
	d.Integrity.CanonicalPayloadHash = ""

	hash, err := canonicalize.CanonicalTaggedHash(algo, d)
	if err != nil {
		return "", fmt.Errorf("epack: seal failed: %w", err)
	}
	d.Integrity.CanonicalPayloadHash = hash
	return hash, nil
}

// VerifySeal recomputes the canonical payload hash with the integrity field
// zeroed and compares it against the stored value. This is invariant #5
// (and the backbone of invariant #2) from spec.md §8.
func (d Decision) VerifySeal() (bool, error) {
	want := d.Integrity.CanonicalPayloadHash
	algo := d.Integrity.CanonicalPayloadHashAlg
	d.Integrity.CanonicalPayloadHash = ""
	got, err := canonicalize.CanonicalTaggedHash(algo, d)
	if err != nil {
		return false, err
	}
	d.Integrity.CanonicalPayloadHash = want
	return got == want, nil
}
