// Package replay verifies that a committed EPACK record (or chain of
// records) is exactly what it claims to be: hash-intact, internally
// consistent, and — where the caller supplies deterministic checks —
// reproducible from the same inputs.
//
// Replay never calls a model provider and never touches the network. It
// is a pure function over already-sealed records, grounded on the kernel's
// earlier receipt-chain replay (prev_hash linking, duplicate and ordering
// checks over a flat list) generalized from a flat Receipt list to the
// richer EPACK Decision Object and its self-referential seal.
package replay

import (
	"encoding/json"
	"fmt"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
	"github.com/bulwark-run/ecosphere/pkg/epack"
)

// Outcome classifies a replay's overall finding.
type Outcome string

const (
	// Verified means every check passed: the record is exactly what it
	// claims to be and, where determinism hooks were supplied, would
	// reproduce the same routing and safety decisions.
	Verified Outcome = "VERIFIED"
	// Drift means integrity holds but a non-integrity check (routing or
	// safety determinism, profile/manifest presence) did not reproduce.
	Drift Outcome = "DRIFT"
	// TamperDetected means a hash, seal, commitment, or chain-linkage
	// check failed: the record does not match what it claims to commit.
	TamperDetected Outcome = "TAMPER_DETECTED"
)

// Step names, in the fixed order spec.md prescribes. Never reorder these:
// callers key results off the name, and the order is itself part of the
// contract a reviewer can audit.
const (
	StepHashIntegrity      = "epack_hash_integrity"
	StepCommitmentCheck    = "commitment_check"
	StepDecisionIntegrity  = "decision_object_integrity"
	StepRoutingDeterminism = "routing_determinism"
	StepSafetyDeterminism  = "safety_determinism"
	StepProfileManifest    = "profile_manifest_presence"
	StepChainLinkage       = "chain_linkage"
)

// StepVerdict is the outcome of one of the seven verification steps.
type StepVerdict struct {
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
	Pass    bool   `json:"pass"`
	Detail  string `json:"detail,omitempty"`
}

// RoutingCheck reports whether the routing decision embedded in a Decision
// Object would be reproduced given the same inputs. Supplied by the
// caller, since it requires knowledge of the routing rules in force;
// replay itself never re-runs them.
type RoutingCheck func(d epack.Decision) (bool, string)

// SafetyCheck reports whether the safety/constitution checks embedded in a
// Decision Object would be reproduced given the same inputs.
type SafetyCheck func(d epack.Decision) (bool, string)

// Options configures the optional, caller-supplied determinism hooks. Both
// are optional: when nil, the corresponding step is recorded as not
// applied and excluded from the determinism index.
type Options struct {
	Algo         canonicalize.Algorithm
	RoutingCheck RoutingCheck
	SafetyCheck  SafetyCheck
}

func (o Options) algo() canonicalize.Algorithm {
	if o.Algo == "" {
		return canonicalize.DefaultAlgorithm
	}
	return o.Algo
}

// Result is the full verdict for one replayed record.
type Result struct {
	Seq              uint64        `json:"seq"`
	Steps            []StepVerdict `json:"steps"`
	ChainLinked      bool          `json:"chain_linked"`
	GovernanceMatch  bool          `json:"governance_match"`
	DeterminismIndex float64       `json:"determinism_index"`
	Outcome          Outcome       `json:"outcome"`
}

func (r *Result) record(name string, applied, pass bool, detail string) {
	r.Steps = append(r.Steps, StepVerdict{Name: name, Applied: applied, Pass: pass, Detail: detail})
}

// Replay runs the seven verification steps against a single sealed
// record. expectedPrevHash is the prev_hash the caller expects this
// record to chain from; pass the empty string to skip chain-linkage
// verification (e.g. when replaying a record in isolation).
//
// Replay never mutates record and never performs I/O of any kind.
func Replay(record epack.Record, expectedPrevHash string, opts Options) Result {
	algo := opts.algo()
	res := Result{Seq: record.Seq, GovernanceMatch: true}

	hashOK, err := record.VerifyHash(algo)
	if err != nil {
		res.record(StepHashIntegrity, true, false, fmt.Sprintf("hash recompute error: %v", err))
	} else {
		res.record(StepHashIntegrity, true, hashOK, "")
	}

	decision, decisionHash, manifest, profile, derr := decodePayload(record.Payload)

	if derr != nil {
		res.record(StepCommitmentCheck, true, false, derr.Error())
	} else {
		commitOK := record.PayloadHash == decisionHash && decisionHash == decision.Integrity.CanonicalPayloadHash
		res.record(StepCommitmentCheck, true, commitOK, "")
	}

	if derr != nil {
		res.record(StepDecisionIntegrity, true, false, derr.Error())
	} else {
		sealOK, sealErr := decision.VerifySeal()
		if sealErr != nil {
			res.record(StepDecisionIntegrity, true, false, sealErr.Error())
		} else {
			res.record(StepDecisionIntegrity, true, sealOK, "")
		}
	}

	if opts.RoutingCheck == nil || derr != nil {
		res.record(StepRoutingDeterminism, false, true, "")
	} else {
		ok, detail := opts.RoutingCheck(*decision)
		res.record(StepRoutingDeterminism, true, ok, detail)
		if !ok {
			res.GovernanceMatch = false
		}
	}

	if opts.SafetyCheck == nil || derr != nil {
		res.record(StepSafetyDeterminism, false, true, "")
	} else {
		ok, detail := opts.SafetyCheck(*decision)
		res.record(StepSafetyDeterminism, true, ok, detail)
		if !ok {
			res.GovernanceMatch = false
		}
	}

	presenceOK := profile != "" && manifest.Kernel != "" && manifest.ManifestHash != ""
	res.record(StepProfileManifest, true, presenceOK, "")

	if expectedPrevHash == "" {
		res.record(StepChainLinkage, false, true, "")
		res.ChainLinked = true
	} else {
		linked := record.PrevHash == expectedPrevHash
		res.record(StepChainLinkage, true, linked, "")
		res.ChainLinked = linked
	}

	res.DeterminismIndex = determinismIndex(res.Steps)
	res.Outcome = classify(res.Steps)
	return res
}

// ReplayChain runs Replay across an ordered chain of records, threading
// expected_prev_hash from each record's own hash into the next — the
// chain-continuity check a single isolated Replay call cannot perform on
// its own.
func ReplayChain(records []epack.Record, opts Options) []Result {
	results := make([]Result, 0, len(records))
	expected := epack.Genesis
	for _, r := range records {
		results = append(results, Replay(r, expected, opts))
		expected = r.Hash
	}
	return results
}

// determinismIndex is the percentage of applied steps that passed,
// in [0, 100]. Steps the caller opted out of (nil hooks, no expected
// prev_hash) are excluded rather than counted as passes or failures.
func determinismIndex(steps []StepVerdict) float64 {
	applied, passed := 0, 0
	for _, s := range steps {
		if !s.Applied {
			continue
		}
		applied++
		if s.Pass {
			passed++
		}
	}
	if applied == 0 {
		return 100
	}
	return 100 * float64(passed) / float64(applied)
}

// classify derives the overall outcome. Any integrity-bearing step (hash,
// commitment, seal, chain linkage) failing is tamper, never mere drift:
// those checks have no legitimate reason to diverge short of the record
// being altered or misordered. A failure confined to the optional
// determinism hooks or the presence check is drift: the record is intact,
// but would not be reproduced exactly today.
func classify(steps []StepVerdict) Outcome {
	tamperSteps := map[string]bool{
		StepHashIntegrity:     true,
		StepCommitmentCheck:   true,
		StepDecisionIntegrity: true,
		StepChainLinkage:      true,
	}
	drifted := false
	for _, s := range steps {
		if !s.Applied || s.Pass {
			continue
		}
		if tamperSteps[s.Name] {
			return TamperDetected
		}
		drifted = true
	}
	if drifted {
		return Drift
	}
	return Verified
}

// decodePayload pulls the Decision Object, its claimed hash, the build
// manifest, and the profile string back out of a record's payload. The
// payload was built with typed values in-process (pkg/epack.Builder.Seal)
// but may also arrive JSON round-tripped from a persisted store, where
// each field decodes to map[string]any instead; decodePayload handles
// both without the caller needing to know which it has.
func decodePayload(p epack.Payload) (*epack.Decision, string, epack.BuildManifest, string, error) {
	decision, err := asDecision(p["decision_object"])
	if err != nil {
		return nil, "", epack.BuildManifest{}, "", fmt.Errorf("replay: decode decision_object: %w", err)
	}
	manifest, err := asManifest(p["build_manifest"])
	if err != nil {
		return nil, "", epack.BuildManifest{}, "", fmt.Errorf("replay: decode build_manifest: %w", err)
	}
	decisionHash, _ := p["decision_hash"].(string)
	profile, _ := p["profile"].(string)
	return decision, decisionHash, manifest, profile, nil
}

func asDecision(v any) (*epack.Decision, error) {
	switch t := v.(type) {
	case *epack.Decision:
		return t, nil
	case epack.Decision:
		return &t, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var d epack.Decision
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return &d, nil
	}
}

func asManifest(v any) (epack.BuildManifest, error) {
	switch t := v.(type) {
	case epack.BuildManifest:
		return t, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return epack.BuildManifest{}, err
		}
		var m epack.BuildManifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return epack.BuildManifest{}, err
		}
		return m, nil
	}
}
