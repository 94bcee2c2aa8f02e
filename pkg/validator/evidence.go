package validator

import "strings"

// EvidenceTriggers are phrases whose presence in an answer implies a
// factual claim strong enough to require citations (spec.md §4.5 stage 2).
var EvidenceTriggers = []string{
	"studies show",
	"research shows",
	"systematic review",
	"randomized trial",
	"randomized controlled trial",
	"meta-analysis shows",
	"according to a study",
}

// RequiresCitations reports whether text contains any evidence trigger
// phrase.
func RequiresCitations(text string) bool {
	lower := strings.ToLower(text)
	for _, trigger := range EvidenceTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// CheckEvidenceGate enforces that, when evidenceRequirementOn is set and
// the text contains a trigger phrase, the citations list is non-empty.
// Text without a trigger phrase passes whatever its citations.
func CheckEvidenceGate(out *Output, evidenceRequirementOn bool) (pass bool, reason string) {
	if !evidenceRequirementOn {
		return true, ""
	}
	if !RequiresCitations(out.Text) {
		return true, ""
	}
	if len(out.Citations) == 0 {
		return false, "evidence-claim trigger phrase present with no citations"
	}
	return true, ""
}
