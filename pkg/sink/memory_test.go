package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bulwark-run/ecosphere/pkg/epack"
)

func TestMemory_AppendAndIter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "s1", epack.Record{Seq: 1, PrevHash: epack.Genesis, Hash: "sha256:a"}))
	require.NoError(t, m.Append(ctx, "s1", epack.Record{Seq: 2, PrevHash: "sha256:a", Hash: "sha256:b"}))

	last, err := m.LastSeq(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)

	ch, err := m.Iter(ctx, "s1")
	require.NoError(t, err)
	var got []epack.Record
	for r := range ch {
		got = append(got, r)
	}
	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].Seq)
}

func TestMemory_RejectsOutOfOrderAppend(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s1", epack.Record{Seq: 1, Hash: "sha256:a"}))
	err := m.Append(ctx, "s1", epack.Record{Seq: 3, Hash: "sha256:c"})
	require.Error(t, err)
}

func TestMemory_LastSeqForUnknownSessionIsZero(t *testing.T) {
	m := NewMemory()
	last, err := m.LastSeq(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Equal(t, uint64(0), last)
}
