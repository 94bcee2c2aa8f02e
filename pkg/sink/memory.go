// Package sink provides append-only persistence backends for epack.Record
// chains: an in-memory sink for tests, a file-backed NDJSON sink for
// single-node deployments, and a database/sql sink for Postgres/SQLite.
//
// Grounded on the teacher's pkg/store/ledger (SQLLedger over database/sql)
// and pkg/ledger/ledger.go (in-memory chain store), generalized from
// Obligation records to epack.Record.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/bulwark-run/ecosphere/pkg/epack"
)

// Memory is a process-local, mutex-guarded Sink. Useful for tests and for
// FAST-profile sessions that opt out of durable persistence.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]epack.Record
}

// NewMemory constructs an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]epack.Record)}
}

func (m *Memory) Append(_ context.Context, sessionID string, record epack.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.records[sessionID]
	if len(existing) > 0 && existing[len(existing)-1].Seq+1 != record.Seq {
		return fmt.Errorf("sink: out-of-order append for session %s: have seq %d, got %d",
			sessionID, existing[len(existing)-1].Seq, record.Seq)
	}
	m.records[sessionID] = append(existing, record)
	return nil
}

func (m *Memory) Iter(ctx context.Context, sessionID string) (<-chan epack.Record, error) {
	m.mu.RLock()
	snapshot := append([]epack.Record(nil), m.records[sessionID]...)
	m.mu.RUnlock()

	out := make(chan epack.Record, len(snapshot))
	go func() {
		defer close(out)
		for _, r := range snapshot {
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *Memory) LastSeq(_ context.Context, sessionID string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	existing := m.records[sessionID]
	if len(existing) == 0 {
		return 0, nil
	}
	return existing[len(existing)-1].Seq, nil
}

var _ epack.Sink = (*Memory)(nil)
