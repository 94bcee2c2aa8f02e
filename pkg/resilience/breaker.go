package resilience

import (
	"sync"
	"time"
)

// BreakerState is a circuit breaker's state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// planBreaker is one plan's circuit state, grounded directly on the
// teacher's pkg/util/resiliency.CircuitBreaker state machine
// (CLOSED/OPEN/HALF_OPEN, threshold-triggered trip, timed reset probe),
// adapted from per-HTTP-client breaking to per-recovery-plan breaking.
type planBreaker struct {
	state            BreakerState
	consecutiveFails int
	lastFailure      time.Time
	halfOpenProbed   bool
}

// PlanBreakers is the per-runtime table of circuit breakers keyed by
// plan name (spec.md "the circuit-breaker state table is protected by a
// single fine-grained lock").
type PlanBreakers struct {
	mu           sync.Mutex
	breakers     map[string]*planBreaker
	threshold    int
	cooldown     time.Duration
	clock        func() time.Time
}

// NewPlanBreakers builds a breaker table tripping after threshold
// consecutive failures, reopening to HALF_OPEN after cooldown.
func NewPlanBreakers(threshold int, cooldown time.Duration) *PlanBreakers {
	return &PlanBreakers{
		breakers:  make(map[string]*planBreaker),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// WithClock overrides the wall clock for deterministic tests.
func (p *PlanBreakers) WithClock(clock func() time.Time) *PlanBreakers {
	p.clock = clock
	return p
}

func (p *PlanBreakers) entry(name string) *planBreaker {
	b, ok := p.breakers[name]
	if !ok {
		b = &planBreaker{state: BreakerClosed}
		p.breakers[name] = b
	}
	return b
}

// Excluded implements ExcludedPlans: a plan is excluded while OPEN, or
// while HALF_OPEN after its single probe attempt has already been used.
func (p *PlanBreakers) Excluded(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.entry(name)

	if b.state == BreakerOpen {
		if p.clock().Sub(b.lastFailure) > p.cooldown {
			b.state = BreakerHalfOpen
			b.halfOpenProbed = false
			return false
		}
		return true
	}
	if b.state == BreakerHalfOpen {
		return b.halfOpenProbed
	}
	return false
}

// Success records a recovery success for plan name.
func (p *PlanBreakers) Success(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.entry(name)
	b.state = BreakerClosed
	b.consecutiveFails = 0
	b.halfOpenProbed = false
}

// Failure records a recovery failure for plan name, tripping the
// breaker at threshold (or immediately snapping a HALF_OPEN probe back
// to OPEN).
func (p *PlanBreakers) Failure(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.entry(name)
	b.lastFailure = p.clock()

	if b.state == BreakerHalfOpen {
		b.halfOpenProbed = true
		b.state = BreakerOpen
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= p.threshold {
		b.state = BreakerOpen
	}
}

// State reports a plan's current breaker state without side effects.
func (p *PlanBreakers) State(name string) BreakerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entry(name).state
}
