package epack

import (
	"strings"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// RedactMode selects whether persistence-time redaction runs at all.
type RedactMode string

const (
	RedactHash RedactMode = "hash"
	RedactOff  RedactMode = "off"
)

// Redacted marks a value that has been replaced by a commitment to its
// original contents ahead of persistence.
type Redacted struct {
	RedactedFlag bool   `json:"redacted"`
	Hash         string `json:"hash"`
}

// DefaultAllowlist is the short list of public-evidence path prefixes
// (JSON-pointer style, '/'-separated) exempt from redaction so replay can
// still resolve them without re-hitting networks (spec.md §4.2).
// decision_object, build_manifest, decision_hash, and profile are exempt
// wholesale: every string they carry is already a hash or structural
// identifier the replay decoder reads back verbatim, never raw free text,
// so nothing under them is ever passed through Redact in the first place.
// They are named here anyway so a caller invoking Redact directly over a
// fully generic payload gets the same exemption.
var DefaultAllowlist = []string{
	"/decision_object",
	"/build_manifest",
	"/decision_hash",
	"/profile",
	"/verification_events",
}

func allowed(path string, allowlist []string) bool {
	for _, p := range allowlist {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Redact walks a payload and replaces every string value not under the
// allowlist with a Redacted commitment, per the RedactMode. RedactOff is a
// no-op (returns v unchanged). Maps and slices are traversed recursively;
// non-string scalars (numbers, bools, nil) are left untouched because they
// carry no free-text disclosure risk on their own.
func Redact(v any, mode RedactMode, algo canonicalize.Algorithm, allowlist []string) (any, error) {
	if mode == RedactOff || mode == "" {
		return v, nil
	}
	if allowlist == nil {
		allowlist = DefaultAllowlist
	}
	return redactAt(v, "", allowlist, algo)
}

func redactAt(v any, path string, allowlist []string, algo canonicalize.Algorithm) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			childPath := path + "/" + k
			r, err := redactAt(vv, childPath, allowlist, algo)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			r, err := redactAt(vv, path, allowlist, algo)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case string:
		if allowed(path, allowlist) || t == "" {
			return t, nil
		}
		hash, err := canonicalize.TaggedHash(algo, []byte(t))
		if err != nil {
			return nil, err
		}
		return Redacted{RedactedFlag: true, Hash: hash}, nil
	default:
		return v, nil
	}
}
