// Package consensus implements the two-stage (Primary/Challenger/Arbiter)
// orchestrator: its configuration presets, the scope gate, the
// challenger trigger policy, arbitration rules, and the hash-chained
// stage-event ledger each orchestrator run writes to (spec.md §4.4).
package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// Stage names, written in the fixed order spec.md §4.4 requires:
// start -> primary.raw -> [debate.*] -> synthesizer.raw -> scope_gate.* -> end.
const (
	StageStart           = "start"
	StagePrimaryRaw      = "primary.raw"
	StageDebateDefender   = "debate.defender.raw"
	StageDebateCritic     = "debate.critic.raw"
	StageSynthesizerRaw  = "synthesizer.raw"
	StageScopeGatePass   = "scope_gate.pass"
	StageScopeGateRewrite = "scope_gate.rewrite"
	StageScopeGateRefuse = "scope_gate.refuse"
	StageEnd             = "end"
)

// StageEvent is one hash-chained entry recording a single orchestrator
// boundary. Grounded directly on the teacher's pkg/ledger.LedgerEntry,
// rebased from a raw sha256(json.Marshal(...)) hash onto
// pkg/canonicalize so stage events share one canonicalization path with
// Decision Objects and EPACK records.
type StageEvent struct {
	Seq      uint64         `json:"seq"`
	Stage    string         `json:"stage"`
	Data     map[string]any `json:"data"`
	PrevHash string         `json:"prev_hash"`
	Ts       int64          `json:"ts"`
	Hash     string         `json:"hash"`
}

// Ledger is an append-only, hash-chained log of one orchestrator run's
// stage events.
type Ledger struct {
	mu       sync.RWMutex
	events   []StageEvent
	headHash string
	clock    func() time.Time
	algo     canonicalize.Algorithm
}

// NewLedger creates an empty stage-event ledger.
func NewLedger(algo canonicalize.Algorithm) *Ledger {
	if algo == "" {
		algo = canonicalize.DefaultAlgorithm
	}
	return &Ledger{headHash: "GENESIS", clock: time.Now, algo: algo}
}

// WithClock overrides the wall clock, for deterministic tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Append writes the next stage event, chaining it from the current head.
func (l *Ledger) Append(stage string, data map[string]any) (StageEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.events)) + 1
	hashInput := struct {
		Seq      uint64         `json:"seq"`
		Stage    string         `json:"stage"`
		Data     map[string]any `json:"data"`
		PrevHash string         `json:"prev_hash"`
	}{seq, stage, data, l.headHash}

	hash, err := canonicalize.CanonicalTaggedHash(l.algo, hashInput)
	if err != nil {
		return StageEvent{}, fmt.Errorf("consensus: hash stage event: %w", err)
	}

	event := StageEvent{
		Seq:      seq,
		Stage:    stage,
		Data:     data,
		PrevHash: l.headHash,
		Ts:       l.clock().Unix(),
		Hash:     hash,
	}
	l.events = append(l.events, event)
	l.headHash = hash
	return event, nil
}

// Events returns a copy of the full event list in order.
func (l *Ledger) Events() []StageEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]StageEvent(nil), l.events...)
}

// Head returns the current chain head hash.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}
