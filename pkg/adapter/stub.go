package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Stub is a deterministic, network-free Adapter: it always returns a
// syntactically valid {text, ...} JSON object derived only from its
// input, never wall-clock or randomness. Useful for local development,
// CI, and as a target for the replay engine, where a network-backed
// provider is explicitly disallowed.
type Stub struct {
	Model string
}

// NewStub is an adapter.Constructor for the "stub" provider.
func NewStub(modelID string) (Adapter, error) {
	return &Stub{Model: modelID}, nil
}

func (s *Stub) GenerateText(ctx context.Context, prompt string, temperature float64, timeout time.Duration, extra map[string]any) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, &Error{Tag: TagTimeout, Provider: "stub", Model: s.Model, Err: ctx.Err()}
	default:
	}

	body := map[string]any{
		"text": fmt.Sprintf("[stub:%s] acknowledged: %s", s.Model, truncate(prompt, 200)),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Result{}, &Error{Tag: TagOther, Provider: "stub", Model: s.Model, Err: err}
	}

	return Result{
		RawText: string(raw),
		Meta:    map[string]any{"provider": "stub", "model": s.Model, "temperature": temperature},
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
