package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/bulwark-run/ecosphere/pkg/consensus"
)

// CELRule supplements a consensus.ScopeRule's regex with an optional CEL
// predicate, letting a policy file express role-level conditions beyond
// a bare min_role_level integer (e.g. "role_level >= 2 && scope ==
// 'finance'"). A rule with an empty Expression behaves exactly like a
// plain consensus.ScopeRule.
type CELRule struct {
	Pattern      string
	MinRoleLevel int
	Reason       string
	Expression   string // optional CEL predicate over role_level/scope/domain
}

// ScopeGateEvaluator compiles and caches CELRule.Expression programs
// against a fixed variable set, mirroring the teacher's
// CELPolicyEvaluator program cache.
type ScopeGateEvaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewScopeGateEvaluator builds an evaluator over the fixed variable set
// a scope-gate CEL predicate may reference.
func NewScopeGateEvaluator() (*ScopeGateEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("role_level", cel.IntType),
		cel.Variable("scope", cel.StringType),
		cel.Variable("domain", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: build scope-gate CEL env: %w", err)
	}
	return &ScopeGateEvaluator{env: env, prgCache: make(map[string]cel.Program)}, nil
}

// CompileRules converts a policy file's CELRule list into
// consensus.ScopeRule values, pre-compiling the regex half via
// consensus.CompileRule. The CEL half is compiled and cached lazily by
// Allows, since Config values are plain data and shouldn't carry a
// cel.Program.
func CompileRules(rules []CELRule) []consensus.ScopeRule {
	out := make([]consensus.ScopeRule, len(rules))
	for i, r := range rules {
		out[i] = consensus.CompileRule(r.Pattern, r.MinRoleLevel, r.Reason)
	}
	return out
}

// Allows reports whether expr permits roleLevel/scope/domain, compiling
// and caching the CEL program on first use. An empty expr always allows
// (the rule falls back to the regex+min_role_level check alone).
func (e *ScopeGateEvaluator) Allows(expr string, roleLevel int, scope, domain string) (bool, error) {
	if expr == "" {
		return true, nil
	}

	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		if prg, hit = e.prgCache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("policy: compile scope-gate predicate: %w", issues.Err())
			}
			p, err := e.env.Program(ast, cel.CostLimit(5000))
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("policy: build scope-gate program: %w", err)
			}
			e.prgCache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]any{"role_level": roleLevel, "scope": scope, "domain": domain})
	if err != nil {
		return false, fmt.Errorf("policy: eval scope-gate predicate: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: scope-gate predicate %q did not return bool", expr)
	}
	return allowed, nil
}
