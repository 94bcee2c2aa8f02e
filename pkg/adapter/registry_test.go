package adapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_GetCachesByProviderAndModel(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("stub", func(model string) (Adapter, error) {
		calls++
		return &Stub{Model: model}, nil
	})

	a1, err := r.Get("stub", "m1")
	require.NoError(t, err)
	a2, err := r.Get("stub", "m1")
	require.NoError(t, err)
	require.Same(t, a1, a2)
	require.Equal(t, 1, calls)

	_, err = r.Get("stub", "m2")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRegistry_UnknownProviderErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing", "m1")
	require.Error(t, err)
}

func TestStub_GenerateText_ProducesValidJSONEnvelope(t *testing.T) {
	a, err := NewStub("test-model")
	require.NoError(t, err)

	res, err := a.GenerateText(context.Background(), "hello", 0.5, time.Second, nil)
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(res.RawText)))
	require.Contains(t, res.RawText, "hello")
}

func TestStub_GenerateText_DeterministicForSameInput(t *testing.T) {
	a, _ := NewStub("test-model")
	r1, _ := a.GenerateText(context.Background(), "hello", 0.5, time.Second, nil)
	r2, _ := a.GenerateText(context.Background(), "hello", 0.5, time.Second, nil)
	require.Equal(t, r1.RawText, r2.RawText)
}

func TestStub_GenerateText_RespectsCancelledContext(t *testing.T) {
	a, _ := NewStub("test-model")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.GenerateText(ctx, "hello", 0.5, time.Second, nil)
	require.Error(t, err)
	require.Equal(t, TagTimeout, Tag(err))
}
