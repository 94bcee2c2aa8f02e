package canonicalize

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

// Algorithm identifies a hash function usable for tagged hashes.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// DefaultAlgorithm is used whenever a caller does not pin one explicitly.
const DefaultAlgorithm = SHA256

func newHasher(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case SHA256, "":
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("canonicalize: unsupported hash algorithm %q", algo)
	}
}

// TaggedHash computes "algo:hexdigest" over raw bytes using the given
// algorithm. The tag lets a chain migrate hash algorithms without breaking
// the ability to distinguish old digests from new ones.
func TaggedHash(algo Algorithm, data []byte) (string, error) {
	h, err := newHasher(algo)
	if err != nil {
		return "", err
	}
	if algo == "" {
		algo = DefaultAlgorithm
	}
	h.Write(data)
	return fmt.Sprintf("%s:%s", algo, hex.EncodeToString(h.Sum(nil))), nil
}

// CanonicalTaggedHash JCS-canonicalizes v and returns its tagged hash under
// the given algorithm.
func CanonicalTaggedHash(algo Algorithm, v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return TaggedHash(algo, b)
}
