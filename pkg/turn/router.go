// Package turn implements the governance kernel's single entry point:
// handle_turn, the routing rules it evaluates in strict order, the
// pending-gate lifecycle, the allow-listed tool dispatcher, and the
// TDM generation path with its retry-then-CLARIFY fallback.
//
// Grounded on the teacher's pkg/kernel/reducer.go: a deterministic
// decision made a pure function of its declared inputs, with every
// branch and its resolution named rather than left implicit in a single
// conditional tower.
package turn

import (
	"regexp"
	"strings"

	"github.com/bulwark-run/ecosphere/pkg/epack"
	"github.com/bulwark-run/ecosphere/pkg/safety"
)

// Route evaluates the five routing rules in strict first-match-wins
// order. It is a pure function of its arguments: nothing else may
// influence the outcome.
func Route(iv safety.InputVector, reflectConfirmed, scaffoldApproved, highStakesReady bool) epack.Mode {
	switch {
	case !iv.Safe:
		return epack.ModeBound
	case iv.RequiresReflect && !reflectConfirmed:
		return epack.ModeReflect
	case iv.RequiresScaffold && reflectConfirmed && !scaffoldApproved:
		return epack.ModeScaffold
	case iv.Domain == safety.DomainHighStakes && !highStakesReady:
		return epack.ModeDefer
	default:
		return epack.ModeTDM
	}
}

// revisionPhrases are the fixed trigger phrases that mark a gate reply as
// a revision rather than an accept/reject, per spec.md §4.1.
var revisionPhrases = []string{
	"actually", "instead", "change that", "revise", "wait,", "on second thought",
	"let's change", "step 1", "step 2", "step 3",
}

// IsRevisionIntent reports whether a gate reply should be treated as
// revising the pending gate's payload rather than accepting/rejecting it.
func IsRevisionIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range revisionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

var (
	acceptPattern = regexp.MustCompile(`(?i)^\s*(yes|confirm|confirmed|go ahead|proceed|approve|approved)\b`)
	rejectPattern = regexp.MustCompile(`(?i)^\s*(no|cancel|stop|nevermind|never mind)\b`)
	tokenPattern  = regexp.MustCompile(`(?i)\btoken[:\s]+([A-Za-z0-9._-]+)`)
)

// GateReplyKind is the classification of a user message received while a
// gate is pending, before token/nonce verification.
type GateReplyKind string

const (
	GateReplyBoundAccept   GateReplyKind = "BOUND_ACCEPT"
	GateReplyUnboundAccept GateReplyKind = "UNBOUND_ACCEPT"
	GateReplyRejected      GateReplyKind = "REJECTED"
	GateReplyMissingToken  GateReplyKind = "MISSING_TOKEN"
	GateReplyUnknown       GateReplyKind = "UNKNOWN"
)

// ClassifyGateReply categorizes a reply against an active gate, per
// spec.md §4.1's "classify the message as bound-accept / unbound-accept /
// rejected / token-mismatch / missing-token / unknown by regex + the
// binding requirement." Token-mismatch is left to the caller, which
// compares the extracted token (if any) against the gate's own record.
func ClassifyGateReply(text string, requireTokenBinding bool) (kind GateReplyKind, token string) {
	if m := tokenPattern.FindStringSubmatch(text); len(m) == 2 {
		token = m[1]
	}
	if rejectPattern.MatchString(text) {
		return GateReplyRejected, token
	}
	if !acceptPattern.MatchString(text) {
		return GateReplyUnknown, token
	}
	if requireTokenBinding && token == "" {
		return GateReplyMissingToken, token
	}
	if requireTokenBinding {
		return GateReplyBoundAccept, token
	}
	return GateReplyUnboundAccept, token
}

// ToolPrefix reports which allow-listed tool a message dispatches to, if
// any.
func ToolPrefix(text string) (tool, args string, ok bool) {
	for _, p := range []string{"calc:", "search:"} {
		if strings.HasPrefix(text, p) {
			return strings.TrimSuffix(p, ":"), strings.TrimSpace(strings.TrimPrefix(text, p)), true
		}
	}
	return "", "", false
}
