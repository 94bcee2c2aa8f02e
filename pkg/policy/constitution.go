// Package policy implements the governance DSL: the policy document
// shape (consensus/challenger/evidence/replay/resilience blocks), the
// fixed constitution of invariants exposed over the API, and an optional
// CEL layer supplementing the consensus scope gate's regex rules with
// compiled predicates (spec.md §6 "Policy file (governance DSL)" and
// "Constitution").
//
// Grounded on the teacher's pkg/governance/policy_engine.go (the CEL
// environment/program-cache shape, reused here for scope-gate
// predicates) and pkg/policyloader/loader.go (external bundle loading
// from disk, generalized from JSON CEL rule bundles to the YAML
// governance DSL this spec names).
package policy

import "github.com/bulwark-run/ecosphere/pkg/canonicalize"

// Severity is a constitution invariant's failure class.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityAdvisory Severity = "ADVISORY"
)

// Invariant is one named, checkable governance guarantee (spec.md §6
// "Constitution").
type Invariant struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Check    string   `json:"check"` // name of the check function, not the function itself
}

// Constitution is the fixed, ordered invariant list plus its stable
// compatibility-anchor hash.
type Constitution struct {
	Invariants []Invariant `json:"invariants"`
	Hash       string      `json:"hash"`
}

// invariants is the fixed list named in spec.md §6: determinism, audit
// completeness, failure transparency, hash-chain integrity, provenance
// manifests, vendor neutrality, fork continuity, configuration
// transparency, validation-before-delivery, human-override preservation,
// backward compatibility.
var invariants = []Invariant{
	{ID: "C-01", Name: "determinism", Severity: SeverityCritical, Category: "replay", Check: "CheckDeterminism"},
	{ID: "C-02", Name: "audit completeness", Severity: SeverityCritical, Category: "evidence", Check: "CheckAuditCompleteness"},
	{ID: "C-03", Name: "failure transparency", Severity: SeverityCritical, Category: "error_handling", Check: "CheckFailureTransparency"},
	{ID: "C-04", Name: "hash-chain integrity", Severity: SeverityCritical, Category: "epack", Check: "CheckChainIntegrity"},
	{ID: "C-05", Name: "provenance manifests", Severity: SeverityWarning, Category: "epack", Check: "CheckProvenanceManifest"},
	{ID: "C-06", Name: "vendor neutrality", Severity: SeverityWarning, Category: "adapter", Check: "CheckVendorNeutrality"},
	{ID: "C-07", Name: "fork continuity", Severity: SeverityWarning, Category: "epack", Check: "CheckForkContinuity"},
	{ID: "C-08", Name: "configuration transparency", Severity: SeverityWarning, Category: "config", Check: "CheckConfigTransparency"},
	{ID: "C-09", Name: "validation-before-delivery", Severity: SeverityCritical, Category: "validator", Check: "CheckValidationBeforeDelivery"},
	{ID: "C-10", Name: "human-override preservation", Severity: SeverityAdvisory, Category: "session", Check: "CheckHumanOverride"},
	{ID: "C-11", Name: "backward compatibility", Severity: SeverityAdvisory, Category: "schema", Check: "CheckBackwardCompatibility"},
}

// LoadConstitution returns the fixed invariant list with its stable
// compatibility-anchor hash. The list never changes at runtime; the hash
// lets a client detect when it's talking to a kernel build that carries
// a different constitution.
func LoadConstitution(algo canonicalize.Algorithm) (Constitution, error) {
	hash, err := canonicalize.CanonicalTaggedHash(algo, invariants)
	if err != nil {
		return Constitution{}, err
	}
	return Constitution{Invariants: append([]Invariant(nil), invariants...), Hash: hash}, nil
}
