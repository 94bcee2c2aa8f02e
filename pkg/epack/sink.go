package epack

import "context"

// Sink is the pluggable persistence contract for EPACK records (spec.md
// §4.2 "Persistence contract"). Implementations MUST be append-only.
type Sink interface {
	Append(ctx context.Context, sessionID string, record Record) error
	Iter(ctx context.Context, sessionID string) (<-chan Record, error)
	LastSeq(ctx context.Context, sessionID string) (uint64, error)
}
