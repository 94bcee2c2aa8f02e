package sink

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/epack"
)

func TestSQL_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQL(db)
	rec := epack.Record{
		Seq: 1, Ts: 1700000000, PrevHash: epack.Genesis, PayloadHash: "sha256:p1", Hash: "sha256:h1",
		Payload: epack.Payload{"decision_hash": "sha256:p1"},
	}

	mock.ExpectExec("INSERT INTO epack_records").
		WithArgs("s1", rec.Seq, rec.Ts, rec.PrevHash, rec.PayloadHash, sqlmock.AnyArg(), rec.Hash).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Append(context.Background(), "s1", rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_LastSeq(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQL(db)

	rows := sqlmock.NewRows([]string{"coalesce"}).AddRow(7)
	mock.ExpectQuery("SELECT COALESCE").WithArgs("s1").WillReturnRows(rows)

	last, err := s.LastSeq(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, uint64(7), last)
}

func TestSQL_Iter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQL(db)

	rows := sqlmock.NewRows([]string{"seq", "ts", "prev_hash", "payload_hash", "payload", "hash"}).
		AddRow(1, 100, epack.Genesis, "sha256:p1", `{"decision_hash":"sha256:p1"}`, "sha256:h1")
	mock.ExpectQuery("SELECT seq, ts, prev_hash, payload_hash, payload, hash").
		WithArgs("s1").
		WillReturnRows(rows)

	ch, err := s.Iter(context.Background(), "s1")
	require.NoError(t, err)

	var got []epack.Record
	for r := range ch {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	require.Equal(t, "sha256:p1", got[0].PayloadHash)
}
