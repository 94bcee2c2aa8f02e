package consensus

import "strings"

// ChallengerPolicy decides whether a Primary-only run escalates to the
// two-stage debate flow (spec.md §4.4.2).
type ChallengerPolicy struct {
	DisagreementThreshold float64 // Jaccard distance above which debate triggers
	TriggerDomains        []string
	TriggerOnScopeGate     bool // any non-PASS scope gate verdict triggers
	TriggerOnLowEvidence   bool
	MaxInvocationsPerSession int
}

// DefaultChallengerPolicy matches spec.md §4.4.2's defaults: moderate
// disagreement sensitivity, HIGH_STAKES domain always escalates, and a
// session-wide cap to bound cost.
func DefaultChallengerPolicy() ChallengerPolicy {
	return ChallengerPolicy{
		DisagreementThreshold:    0.4,
		TriggerDomains:           []string{"HIGH_STAKES"},
		TriggerOnScopeGate:       true,
		TriggerOnLowEvidence:     true,
		MaxInvocationsPerSession: 10,
	}
}

// TriggerDecision records why (or why not) the debate flow was invoked.
type TriggerDecision struct {
	Trigger bool
	Reason  string
}

// ShouldTrigger evaluates the policy against one candidate run. sessionInvocations
// is the count of debate invocations already made this session.
func (p ChallengerPolicy) ShouldTrigger(domain string, scopeGateAction Action, evidenceSufficient bool, sessionInvocations int) TriggerDecision {
	if sessionInvocations >= p.MaxInvocationsPerSession {
		return TriggerDecision{Trigger: false, Reason: "session invocation cap reached"}
	}
	for _, d := range p.TriggerDomains {
		if strings.EqualFold(d, domain) {
			return TriggerDecision{Trigger: true, Reason: "domain " + domain + " always escalates"}
		}
	}
	if p.TriggerOnScopeGate && scopeGateAction != ActionPass {
		return TriggerDecision{Trigger: true, Reason: "scope gate verdict " + scopeGateAction.String()}
	}
	if p.TriggerOnLowEvidence && !evidenceSufficient {
		return TriggerDecision{Trigger: true, Reason: "insufficient evidence for claim"}
	}
	return TriggerDecision{Trigger: false, Reason: "no trigger condition met"}
}

// Disagreement computes the Jaccard distance between two answers' token
// sets: 1 - |A∩B|/|A∪B|. 0 means identical vocabularies, 1 means
// disjoint. Used to decide whether a Defender/Critic pair disagrees
// enough to warrant arbitration rather than trivial synthesis.
func Disagreement(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA)
	for tok := range setB {
		if !setA[tok] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return 1 - float64(inter)/float64(union)
}

func tokenSet(text string) map[string]bool {
	out := map[string]bool{}
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out[strings.ToLower(cur.String())] = true
			cur.Reset()
		}
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

// DisagreementTriggers reports whether the Defender/Critic pair's
// disagreement exceeds the policy's threshold.
func (p ChallengerPolicy) DisagreementTriggers(defenderAnswer, criticAnswer string) TriggerDecision {
	d := Disagreement(defenderAnswer, criticAnswer)
	if d >= p.DisagreementThreshold {
		return TriggerDecision{Trigger: true, Reason: "defender/critic disagreement above threshold"}
	}
	return TriggerDecision{Trigger: false, Reason: "defender/critic answers sufficiently aligned"}
}
