package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/epack"
)

func TestFile_AppendIterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	ctx := context.Background()
	require.NoError(t, f.Append(ctx, "s1", epack.Record{
		Seq: 1, Ts: 100, PrevHash: epack.Genesis, PayloadHash: "sha256:p1", Hash: "sha256:h1",
		Payload: epack.Payload{"decision_hash": "sha256:p1"},
	}))
	require.NoError(t, f.Append(ctx, "s1", epack.Record{
		Seq: 2, Ts: 200, PrevHash: "sha256:h1", PayloadHash: "sha256:p2", Hash: "sha256:h2",
		Payload: epack.Payload{"decision_hash": "sha256:p2"},
	}))

	last, err := f.LastSeq(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)

	ch, err := f.Iter(ctx, "s1")
	require.NoError(t, err)
	var got []epack.Record
	for r := range ch {
		got = append(got, r)
	}
	require.Len(t, got, 2)
	require.Equal(t, "sha256:p2", got[1].PayloadHash)
}

func TestFile_LastSeqForUnknownSessionIsZero(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	last, err := f.LastSeq(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Equal(t, uint64(0), last)
}

func TestFile_RejectsOutOfOrderAppend(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	ctx := context.Background()
	require.NoError(t, f.Append(ctx, "s1", epack.Record{Seq: 1, Hash: "sha256:h1"}))
	err = f.Append(ctx, "s1", epack.Record{Seq: 5, Hash: "sha256:h5"})
	require.Error(t, err)
}
