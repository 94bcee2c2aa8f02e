package consensus

import (
	"fmt"
	"regexp"
)

// Action is the scope gate's and arbitration's shared outcome lattice,
// ordered PASS < REWRITE < REFUSE (spec.md §4.4.3: "Action order is
// fixed").
type Action int

const (
	ActionPass Action = iota
	ActionRewrite
	ActionRefuse
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "PASS"
	case ActionRewrite:
		return "REWRITE"
	case ActionRefuse:
		return "REFUSE"
	default:
		return "UNKNOWN"
	}
}

// Max returns the higher-severity of a and b, implementing the
// "upgrades compose monotonically" rule.
func Max(a, b Action) Action {
	if b > a {
		return b
	}
	return a
}

// ScopeRule is one regex-gated disclosure restriction.
type ScopeRule struct {
	Pattern     string
	Regex       *regexp.Regexp
	MinRoleLevel int
	Reason      string
}

// ScopeGateConfig configures the scope gate (spec.md §4.4.1).
type ScopeGateConfig struct {
	Domain              string
	Rules               []ScopeRule
	LowTierDisclaimer   string
	LowTierRoleCeiling  int // role_level <= this requires the disclaimer
}

// CompileRule compiles pattern once; panics on an invalid pattern since
// rule sets are fixed configuration, not user input.
func CompileRule(pattern string, minRoleLevel int, reason string) ScopeRule {
	return ScopeRule{Pattern: pattern, Regex: regexp.MustCompile(pattern), MinRoleLevel: minRoleLevel, Reason: reason}
}

// DefaultScopeGateConfig is a representative rule set: internal
// infrastructure details and unredacted credentials are restricted to
// elevated roles, matching the kind of "internal-only" language a
// governance boundary typically restricts.
func DefaultScopeGateConfig() ScopeGateConfig {
	return ScopeGateConfig{
		Domain: "general",
		Rules: []ScopeRule{
			CompileRule(`(?i)internal (api key|credential|secret)`, 3, "internal credential disclosure"),
			CompileRule(`(?i)production database (password|connection string)`, 3, "production access disclosure"),
			CompileRule(`(?i)unreleased (financial|earnings) (figures|results)`, 2, "non-public financial disclosure"),
		},
		LowTierDisclaimer:  "This information may be incomplete; consult a qualified professional for your specific situation.",
		LowTierRoleCeiling: 2,
	}
}

// GateResult is the scope gate's verdict.
type GateResult struct {
	Action        Action
	Violations    []string
	RewritePrompt string
}

// Gate is a pure function over (answer, verification context, config),
// per spec.md §4.4.1.
func Gate(answer, reasoningTrace string, vc VerificationContext, cfg ScopeGateConfig) GateResult {
	var violations []string
	for _, rule := range cfg.Rules {
		if rule.MinRoleLevel <= vc.RoleLevel {
			continue // caller is cleared for this language class
		}
		if rule.Regex.MatchString(answer) || (reasoningTrace != "" && rule.Regex.MatchString(reasoningTrace)) {
			violations = append(violations, rule.Reason)
		}
	}

	disclaimerMissing := vc.RoleLevel <= cfg.LowTierRoleCeiling && cfg.LowTierDisclaimer != "" &&
		!containsDisclaimer(answer, cfg.LowTierDisclaimer)

	if len(violations) == 0 && !disclaimerMissing {
		return GateResult{Action: ActionPass}
	}

	if vc.RoleLevel < 2 && len(violations) > 0 {
		return GateResult{Action: ActionRefuse, Violations: violations}
	}

	prompt := rewritePrompt(vc.RoleLevel, violations, disclaimerMissing, cfg)
	return GateResult{Action: ActionRewrite, Violations: violations, RewritePrompt: prompt}
}

func containsDisclaimer(text, disclaimer string) bool {
	return len(disclaimer) > 0 && regexp.MustCompile(regexp.QuoteMeta(disclaimer)).MatchString(text)
}

func rewritePrompt(roleLevel int, violations []string, disclaimerMissing bool, cfg ScopeGateConfig) string {
	prompt := fmt.Sprintf("Rewrite the answer for a caller at role level %d.", roleLevel)
	if len(violations) > 0 {
		prompt += fmt.Sprintf(" Remove or generalize language in these restricted classes: %v.", violations)
	}
	if disclaimerMissing {
		prompt += fmt.Sprintf(" You must include this disclaimer verbatim: %q", cfg.LowTierDisclaimer)
	}
	return prompt
}
