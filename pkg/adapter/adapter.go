// Package adapter defines the model-provider capability boundary the
// consensus orchestrator depends on, plus a provider registry cached by
// (provider, model) (spec.md §4.4 "Adapter capability").
//
// Grounded on the teacher's pkg/llm (Client/Message/Response shapes) and
// pkg/llm/router.go (the provider-selection/caching idea), narrowed from
// a multi-turn chat client to the single `generate_text` capability the
// governance kernel's orchestrator actually calls.
package adapter

import (
	"context"
	"time"
)

// Result is one adapter call's raw output plus provider metadata.
type Result struct {
	RawText string
	Meta    map[string]any
}

// Adapter is the one capability the consensus orchestrator depends on.
type Adapter interface {
	GenerateText(ctx context.Context, prompt string, temperature float64, timeout time.Duration, extra map[string]any) (Result, error)
}

// Constructor builds an Adapter bound to a specific model ID.
type Constructor func(modelID string) (Adapter, error)
