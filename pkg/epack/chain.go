package epack

import (
	"fmt"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// LinkError describes a chain-continuity failure at a specific index.
type LinkError struct {
	Index int
	Want  string
	Got   string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("epack: chain broken at index %d: expected prev_hash %s, got %s", e.Index, e.Want, e.Got)
}

// VerifyChain checks hash integrity and prev_hash linkage across an ordered
// slice of records (spec.md §8 invariants #1-#3). It does not invoke any
// LLM or network I/O.
func VerifyChain(records []Record, algo canonicalize.Algorithm) error {
	expected := Genesis
	for i, r := range records {
		if r.PrevHash != expected {
			return &LinkError{Index: i, Want: expected, Got: r.PrevHash}
		}
		ok, err := r.VerifyHash(algo)
		if err != nil {
			return fmt.Errorf("epack: hash recompute failed at index %d: %w", i, err)
		}
		if !ok {
			return fmt.Errorf("epack: hash mismatch at index %d (seq=%d)", i, r.Seq)
		}
		expected = r.Hash
	}
	return nil
}
