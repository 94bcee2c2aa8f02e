package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bulwark-run/ecosphere/pkg/epack"
)

// SQL implements epack.Sink over database/sql, compatible with both
// Postgres (lib/pq) and SQLite (modernc.org/sqlite), matching the
// teacher's SQLLedger split between a thin Go layer and driver-agnostic
// SQL.
type SQL struct {
	db *sql.DB
}

// NewSQL wraps an already-open *sql.DB.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS epack_records (
	session_id   TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	ts           INTEGER NOT NULL,
	prev_hash    TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	payload      TEXT NOT NULL,
	hash         TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// Init creates the backing table if it does not already exist.
func (s *SQL) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQL) Append(ctx context.Context, sessionID string, record epack.Record) error {
	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("sink: marshal payload: %w", err)
	}

	query := `
		INSERT INTO epack_records (session_id, seq, ts, prev_hash, payload_hash, payload, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		sessionID, record.Seq, record.Ts, record.PrevHash, record.PayloadHash, string(payloadJSON), record.Hash,
	)
	if err != nil {
		return fmt.Errorf("sink: insert record: %w", err)
	}
	return nil
}

func (s *SQL) Iter(ctx context.Context, sessionID string) (<-chan epack.Record, error) {
	query := `
		SELECT seq, ts, prev_hash, payload_hash, payload, hash
		FROM epack_records
		WHERE session_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sink: query records: %w", err)
	}

	out := make(chan epack.Record)
	go func() {
		defer close(out)
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var rec epack.Record
			var payloadJSON string
			if err := rows.Scan(&rec.Seq, &rec.Ts, &rec.PrevHash, &rec.PayloadHash, &payloadJSON, &rec.Hash); err != nil {
				return
			}
			if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *SQL) LastSeq(ctx context.Context, sessionID string) (uint64, error) {
	query := `SELECT COALESCE(MAX(seq), 0) FROM epack_records WHERE session_id = $1`
	row := s.db.QueryRowContext(ctx, query, sessionID)

	var last uint64
	if err := row.Scan(&last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("sink: query last seq: %w", err)
	}
	return last, nil
}

var _ epack.Sink = (*SQL)(nil)
