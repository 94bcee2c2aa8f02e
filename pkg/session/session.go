// Package session owns per-session governance state: the pending gate,
// the bounded state trace, the EPACK chain position cache, the workflow
// queue, and the trust-signal belief set a turn's routing rules consult.
//
// Grounded on the teacher's pkg/identity (per-principal state + secret
// material) and pkg/governance/signal_controller.go (the single mutex
// guarding one mutable belief/threshold set), adapted from "principal
// identity" to "turn-scoped governance state."
package session

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/epack"
)

// TraceEntry is one bounded, in-order entry in a session's state trace.
type TraceEntry struct {
	Interaction uint64         `json:"interaction"`
	Event       string         `json:"event"`
	Detail      map[string]any `json:"detail,omitempty"`
	Ts          time.Time      `json:"ts"`
}

const traceCapacity = 50

// State is the full mutable state owned by one session. Per spec.md §5,
// every access is serialized through mu; the turn engine never reads or
// writes a field without holding the lock.
type State struct {
	mu sync.Mutex

	SessionID        string
	InteractionCount uint64
	CurrentProfile   epack.Profile
	PendingGate      *PendingGate
	trace            []TraceEntry

	EpackSeq      uint64
	EpackPrevHash string

	Beliefs        map[string]bool
	WorkflowQueue  []string
	ConsecutiveOK  uint64 // turns since the last validation failure, for de-escalation

	// PendingContinuation carries the original request text across a
	// REFLECT/SCAFFOLD gate so the turn that finally reaches TDM
	// generates against what the user actually asked, not the
	// confirmation reply that cleared the gate.
	PendingContinuation string

	secret []byte // HMAC key scoping this session's gate nonces
}

// New creates a session in its initial state: FAST profile, no pending
// gate, an empty trace, and a freshly generated per-session secret.
func New(sessionID string) (*State, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("session: generate secret: %w", err)
	}
	return &State{
		SessionID:      sessionID,
		CurrentProfile: epack.ProfileFast,
		Beliefs:        make(map[string]bool),
		secret:         secret,
		EpackPrevHash:  epack.Genesis,
	}, nil
}

// Lock / Unlock expose the session's serialization lock directly so the
// turn engine can hold it across an entire handle_turn call, matching the
// "one turn completes before the next is accepted" scheduling rule.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// Secret returns the session's HMAC key. Callers must hold the lock.
func (s *State) Secret() []byte { return s.secret }

// RecordTrace appends a bounded trace entry, evicting the oldest entry
// once traceCapacity is exceeded. Callers must hold the lock.
func (s *State) RecordTrace(event string, detail map[string]any) {
	entry := TraceEntry{Interaction: s.InteractionCount, Event: event, Detail: detail, Ts: time.Now()}
	s.trace = append(s.trace, entry)
	if len(s.trace) > traceCapacity {
		s.trace = s.trace[len(s.trace)-traceCapacity:]
	}
}

// Trace returns a copy of the current bounded trace tail.
func (s *State) Trace() []TraceEntry {
	return append([]TraceEntry(nil), s.trace...)
}

// HighStakesReady reports the tsv belief routing rule 4 consults.
func (s *State) HighStakesReady() bool { return s.Beliefs["high_stakes_ready"] }

// AdvanceEpack records the hash of a just-sealed EPACK record as the new
// chain head, keeping chain extension O(1) for the next turn.
func (s *State) AdvanceEpack(hash string) {
	s.EpackSeq++
	s.EpackPrevHash = hash
}

// EnqueueWorkflow appends a queued step (e.g. "SCAFFOLD", "TDM").
func (s *State) EnqueueWorkflow(step string) {
	s.WorkflowQueue = append(s.WorkflowQueue, step)
}

// DequeueWorkflow pops the next queued step, if any.
func (s *State) DequeueWorkflow() (string, bool) {
	if len(s.WorkflowQueue) == 0 {
		return "", false
	}
	step := s.WorkflowQueue[0]
	s.WorkflowQueue = s.WorkflowQueue[1:]
	return step, true
}

// Escalate moves the profile one rung up the FAST → STANDARD →
// HIGH_ASSURANCE ladder, never past HIGH_ASSURANCE.
func (s *State) Escalate() {
	switch s.CurrentProfile {
	case epack.ProfileFast:
		s.CurrentProfile = epack.ProfileStandard
	case epack.ProfileStandard:
		s.CurrentProfile = epack.ProfileHighAssurance
	}
	s.ConsecutiveOK = 0
}

// DeEscalate moves the profile one rung down, never below FAST.
func (s *State) DeEscalate() {
	switch s.CurrentProfile {
	case epack.ProfileHighAssurance:
		s.CurrentProfile = epack.ProfileStandard
	case epack.ProfileStandard:
		s.CurrentProfile = epack.ProfileFast
	}
	s.ConsecutiveOK = 0
}

// cleanStreakThreshold is the number of consecutive clean turns (spec.md
// §4.1 "clean streak of >= 8 turns") required before de-escalation is
// considered.
const cleanStreakThreshold = 8

// ObserveValidation updates the escalation counters for one validation
// cycle outcome and returns whether an escalation/de-escalation should
// happen this turn, per spec.md §4.1.
func (s *State) ObserveValidation(failures int) (escalate, deescalate bool) {
	if failures >= 2 {
		return true, false
	}
	if failures > 0 {
		s.ConsecutiveOK = 0
		return false, false
	}
	s.ConsecutiveOK++
	if s.ConsecutiveOK >= cleanStreakThreshold {
		return false, true
	}
	return false, false
}
