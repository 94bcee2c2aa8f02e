// Package api — /query endpoint: an OpenAI-chat-completions-shaped
// surface over the turn engine, so existing chat clients can point at
// the kernel with no protocol translation of their own.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/session"
	"github.com/bulwark-run/ecosphere/pkg/turn"
)

// TurnHandler is the subset of *turn.Engine the /query endpoint needs.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sess *session.State, userText string) (turn.Result, error)
}

// SessionStore resolves an inbound OpenAI-style conversation to kernel
// session state, keyed by the caller-supplied session id.
type SessionStore interface {
	Get(id string) (*session.State, error)
}

// ChatMessage is a single message in the OpenAI chat format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the OpenAI-compatible request format.
// SessionID is an ecosphere extension carried in a top-level field
// (OpenAI clients that ignore unknown fields tolerate this fine);
// if absent, the X-Session-ID header is used, and a request with
// neither is rejected with 400.
type ChatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	SessionID string        `json:"session_id,omitempty"`
}

// ChatCompletionResponse is the OpenAI-compatible response format.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Kernel  KernelMeta   `json:"kernel"`
}

// ChatChoice is a single completion choice.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// KernelMeta surfaces governance metadata alongside the OpenAI-shaped
// response body, so clients that understand it can inspect the turn's
// mode and EPACK commitment without a second round trip.
type KernelMeta struct {
	Mode       string `json:"mode"`
	EpackHash  string `json:"epack_hash"`
	SessionID  string `json:"session_id"`
}

// QueryHandler serves POST /query.
type QueryHandler struct {
	Turns    TurnHandler
	Sessions SessionStore
}

// NewQueryHandler constructs a QueryHandler.
func NewQueryHandler(turns TurnHandler, sessions SessionStore) *QueryHandler {
	return &QueryHandler{Turns: turns, Sessions: sessions}
}

// ServeHTTP handles POST /query. It accepts the last user message from
// an OpenAI-shaped chat request, runs it through the turn engine, and
// returns an OpenAI-shaped response carrying the resulting EPACK hash.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	userText, err := lastUserMessage(req.Messages)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}
	if sessionID == "" {
		WriteBadRequest(w, "session_id or X-Session-ID header is required")
		return
	}

	sess, err := h.Sessions.Get(sessionID)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	outcome, err := h.Turns.HandleTurn(r.Context(), sess, userText)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	resp := ChatCompletionResponse{
		ID:      fmt.Sprintf("ecosphere-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []ChatChoice{{
			Index: 0,
			Message: ChatMessage{
				Role:    "assistant",
				Content: outcome.AssistantText,
			},
			FinishReason: "stop",
		}},
		Kernel: KernelMeta{
			Mode:      string(outcome.Mode),
			EpackHash: outcome.Record.Hash,
			SessionID: sessionID,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func lastUserMessage(messages []ChatMessage) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, nil
		}
	}
	return "", errors.New("messages must include at least one user message")
}
