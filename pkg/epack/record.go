package epack

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// Genesis is the literal previous-hash value for the first record in a
// session's chain.
const Genesis = "GENESIS"

// BuildManifest identifies the kernel build that produced a record, and is
// required to be embedded in every EPACK payload (spec.md §3 invariant).
type BuildManifest struct {
	Kernel        string            `json:"kernel"`
	KernelVersion string            `json:"kernel_version"`
	FeatureFlags  map[string]bool   `json:"feature_flags,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
	ManifestHash  string            `json:"manifest_hash"`
}

// Seal computes and writes ManifestHash over the rest of the struct.
func (m *BuildManifest) Seal(algo canonicalize.Algorithm) error {
	m.ManifestHash = ""
	hashInput := struct {
		Kernel        string            `json:"kernel"`
		KernelVersion string            `json:"kernel_version"`
		FeatureFlags  map[string]bool   `json:"feature_flags,omitempty"`
		Extra         map[string]string `json:"extra,omitempty"`
	}{m.Kernel, m.KernelVersion, m.FeatureFlags, m.Extra}
	hash, err := canonicalize.CanonicalTaggedHash(algo, hashInput)
	if err != nil {
		return fmt.Errorf("epack: manifest seal failed: %w", err)
	}
	m.ManifestHash = hash
	return nil
}

// Payload is the EPACK record's carried content: the full Decision Object
// plus replay context, flattened into a generic map so additional fields
// (stage events, tool records, resilience events) can ride along without
// widening the Record type itself.
type Payload map[string]any

// Record is one sealed, hash-chained entry in a session's EPACK chain.
// Append-only: no in-place mutation is legal once constructed.
type Record struct {
	Seq         uint64    `json:"seq"`
	Ts          int64     `json:"ts"`
	PrevHash    string    `json:"prev_hash"`
	PayloadHash string    `json:"payload_hash"`
	Payload     Payload   `json:"payload"`
	Hash        string    `json:"hash"`
	createdAt   time.Time // not serialized; convenience for the builder
}

// hashable is the exact field set whose canonical hash becomes Record.Hash.
// It intentionally excludes Hash itself.
type hashable struct {
	Seq         uint64  `json:"seq"`
	Ts          int64   `json:"ts"`
	PrevHash    string  `json:"prev_hash"`
	PayloadHash string  `json:"payload_hash"`
	Payload     Payload `json:"payload"`
}

// Seal computes Hash from {seq, ts, prev_hash, payload_hash, payload}.
func (r *Record) Seal(algo canonicalize.Algorithm) (string, error) {
	hash, err := canonicalize.CanonicalTaggedHash(algo, hashable{
		Seq:         r.Seq,
		Ts:          r.Ts,
		PrevHash:    r.PrevHash,
		PayloadHash: r.PayloadHash,
		Payload:     r.Payload,
	})
	if err != nil {
		return "", fmt.Errorf("epack: record seal failed: %w", err)
	}
	r.Hash = hash
	return hash, nil
}

// VerifyHash recomputes Hash and compares it against the stored value
// (spec.md §8 invariant #2 — a single-field mutation must break this).
func (r Record) VerifyHash(algo canonicalize.Algorithm) (bool, error) {
	want := r.Hash
	got, err := canonicalize.CanonicalTaggedHash(algo, hashable{
		Seq:         r.Seq,
		Ts:          r.Ts,
		PrevHash:    r.PrevHash,
		PayloadHash: r.PayloadHash,
		Payload:     r.Payload,
	})
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// Builder constructs Records in sequence for a single session, caching the
// previous hash so chain extension is O(1) (spec.md §4.2 "Chain continuity").
type Builder struct {
	Algo       canonicalize.Algorithm
	RedactMode RedactMode
	Allowlist  []string
	seq        uint64
	prevHash   string
	clock      func() time.Time
}

// NewBuilder creates a chain builder starting at seq=1 with PrevHash=Genesis.
func NewBuilder(algo canonicalize.Algorithm) *Builder {
	if algo == "" {
		algo = canonicalize.DefaultAlgorithm
	}
	return &Builder{Algo: algo, seq: 0, prevHash: Genesis, clock: time.Now}
}

// Resume re-creates a builder positioned after an already-persisted tail,
// for a session resuming mid-chain.
func Resume(algo canonicalize.Algorithm, lastSeq uint64, lastHash string) *Builder {
	if algo == "" {
		algo = canonicalize.DefaultAlgorithm
	}
	return &Builder{Algo: algo, seq: lastSeq, prevHash: lastHash, clock: time.Now}
}

// WithClock overrides the wall clock, for deterministic tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithRedaction configures persistence-time redaction (spec.md §4.2) applied
// to each record's addenda before it is sealed. A nil allowlist falls back
// to DefaultAllowlist; RedactOff (or the zero value) disables redaction.
func (b *Builder) WithRedaction(mode RedactMode, allowlist []string) *Builder {
	b.RedactMode = mode
	b.Allowlist = allowlist
	return b
}

// Seal builds and seals the next Record in the chain for the given Decision
// Object, per spec.md §4.2: payload_hash is overridden to equal the
// decision's canonical_payload_hash; the build manifest rides in the
// payload.
//
// epack_block_hash is the record's own hash, which cannot live inside that
// record's own preimage: it is unknowable until after the record is sealed.
// So the decision is always sealed with prev_decision_hash set to the
// chain's current head and epack_block_hash held empty, and a snapshot of
// that sealed decision — not the live pointer — is the one embedded in the
// payload. Only after the record hash exists is epack_block_hash written
// back onto the caller's decision, which by then has already been copied
// into the record and so cannot perturb the hash that was just computed.
func (b *Builder) Seal(decision *Decision, manifest BuildManifest, extra map[string]any) (*Record, error) {
	decision.Integrity.PrevDecisionHash = b.prevHash
	decision.Integrity.EpackBlockHash = ""
	if _, err := decision.Seal(b.Algo); err != nil {
		return nil, err
	}
	sealed := *decision

	extra, err := redactExtra(extra, b.RedactMode, b.Algo, b.Allowlist)
	if err != nil {
		return nil, fmt.Errorf("epack: redact payload: %w", err)
	}

	b.seq++
	payload := Payload{}
	for k, v := range extra {
		payload[k] = v
	}
	payload["decision_object"] = sealed
	payload["decision_hash"] = sealed.Integrity.CanonicalPayloadHash
	payload["build_manifest"] = manifest
	payload["profile"] = string(sealed.Context.Profile)

	record := &Record{
		Seq:         b.seq,
		Ts:          b.clock().Unix(),
		PrevHash:    b.prevHash,
		PayloadHash: sealed.Integrity.CanonicalPayloadHash,
		Payload:     payload,
	}

	if _, err := record.Seal(b.Algo); err != nil {
		b.seq--
		return nil, err
	}

	decision.Integrity.EpackBlockHash = record.Hash
	b.prevHash = record.Hash
	return record, nil
}

// redactExtra applies persistence-time string redaction to a turn's
// addenda (stage events, tool records) before they are committed to the
// payload and hashed. decision_object and build_manifest never pass
// through here: every string they carry is already a hash or structural
// identifier the replay decoder needs verbatim, never raw free text, so
// redacting them would make a clean record undecodable rather than private.
// extra is JSON round-tripped into a generic tree first since it arrives
// built from typed Go values (e.g. []turn.ToolRecord) that Redact, which
// only walks map[string]any/[]any/string, cannot otherwise see into.
func redactExtra(extra map[string]any, mode RedactMode, algo canonicalize.Algorithm, allowlist []string) (map[string]any, error) {
	if len(extra) == 0 || mode == RedactOff || mode == "" {
		return extra, nil
	}

	raw, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	redacted, err := Redact(generic, mode, algo, allowlist)
	if err != nil {
		return nil, err
	}
	out, ok := redacted.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("epack: redacted extra is not a map")
	}
	return out, nil
}

// Head returns the current chain head hash (the last sealed record's hash,
// or Genesis if nothing has been sealed yet).
func (b *Builder) Head() string { return b.prevHash }

// NextSeq returns the sequence number the next Seal call will assign.
func (b *Builder) NextSeq() uint64 { return b.seq + 1 }
