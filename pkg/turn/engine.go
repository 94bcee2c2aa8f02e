package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/adapter"
	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
	"github.com/bulwark-run/ecosphere/pkg/epack"
	"github.com/bulwark-run/ecosphere/pkg/safety"
	"github.com/bulwark-run/ecosphere/pkg/session"
	"github.com/bulwark-run/ecosphere/pkg/validator"
)

// RetryBudget is the per-profile count of TDM generation attempts before
// the engine gives up and returns the CLARIFY fallback (spec.md §4.1).
var RetryBudget = map[epack.Profile]int{
	epack.ProfileFast:          1,
	epack.ProfileStandard:      2,
	epack.ProfileHighAssurance: 3,
}

// Engine drives handle_turn. One Engine instance is shared across every
// session; all per-session mutable state lives in *session.State, locked
// for the duration of the call.
type Engine struct {
	Registry        *adapter.Registry
	Provider        string
	Model           string
	Timeout         time.Duration
	Algo            canonicalize.Algorithm
	SigningKey      []byte
	SafetyConfig    safety.Config
	RequireEvidence bool
	KernelVersion   string
	Clock           func() time.Time
	RedactMode      epack.RedactMode
	RedactAllowlist []string
}

// NewEngine builds an Engine with the default algorithm and timeout.
func NewEngine(registry *adapter.Registry, provider, model string, signingKey []byte) *Engine {
	return &Engine{
		Registry:      registry,
		Provider:      provider,
		Model:         model,
		Timeout:       30 * time.Second,
		Algo:          canonicalize.DefaultAlgorithm,
		SigningKey:    signingKey,
		SafetyConfig:  safety.DefaultConfig(),
		KernelVersion: "0.1.0",
		Clock:         time.Now,
	}
}

// Result is handle_turn's return value: spec.md §4.1's
// {assistant_text, epack_record}, plus the tool records and routing mode
// a caller (or test) may want to inspect without re-parsing the record.
type Result struct {
	AssistantText string
	Record        epack.Record
	Mode          epack.Mode
	ToolRecords   []ToolRecord
}

// HandleTurn is the single entry point driving every governed
// interaction. It holds sess's lock for its entire duration, matching the
// "one turn completes before the next is accepted" scheduling rule.
func (e *Engine) HandleTurn(ctx context.Context, sess *session.State, userText string) (Result, error) {
	sess.Lock()
	defer sess.Unlock()

	sess.InteractionCount++

	if sess.PendingGate != nil {
		if res, handled, err := e.handleGate(sess, userText); handled {
			return res, err
		}
		// fell through: gate accepted, routing continues below with the
		// refreshed beliefs the gate handler just set. Resume against the
		// original request text the gate was opened for, not the
		// confirmation reply that just cleared it.
	}

	effectiveText := userText
	if sess.PendingContinuation != "" {
		effectiveText = sess.PendingContinuation
	}

	if step, ok := sess.DequeueWorkflow(); ok {
		iv, err := safety.BuildInputVector(effectiveText, e.SafetyConfig, e.Algo)
		if err != nil {
			return Result{}, fmt.Errorf("turn: build input vector: %w", err)
		}
		switch epack.Mode(step) {
		case epack.ModeScaffold:
			return e.openScaffoldGate(sess, iv)
		case epack.ModeTDM:
			sess.PendingContinuation = ""
			return e.runTDM(ctx, sess, iv, effectiveText)
		default:
			return e.sealSimple(sess, epack.Mode(step), iv, deferText, nil)
		}
	}

	if tool, args, ok := ToolPrefix(userText); ok {
		return e.dispatchTool(sess, tool, args)
	}

	iv, err := safety.BuildInputVector(effectiveText, e.SafetyConfig, e.Algo)
	if err != nil {
		return Result{}, fmt.Errorf("turn: build input vector: %w", err)
	}
	mode := Route(iv, sess.Beliefs["reflect_confirmed"], sess.Beliefs["scaffold_approved"], sess.HighStakesReady())
	switch mode {
	case epack.ModeReflect:
		sess.PendingContinuation = effectiveText
		return e.openReflectGate(sess, iv)
	case epack.ModeScaffold:
		sess.PendingContinuation = effectiveText
		return e.openScaffoldGate(sess, iv)
	case epack.ModeBound:
		return e.sealSimple(sess, mode, iv, boundText, nil)
	case epack.ModeDefer:
		return e.sealSimple(sess, mode, iv, deferText, nil)
	default:
		sess.PendingContinuation = ""
		return e.runTDM(ctx, sess, iv, effectiveText)
	}
}

func (e *Engine) dispatchTool(sess *session.State, tool, args string) (Result, error) {
	text, record := DispatchTool(tool, args, e.Algo)
	iv, err := safety.BuildInputVector(tool+":"+args, e.SafetyConfig, e.Algo)
	if err != nil {
		return Result{}, fmt.Errorf("turn: build input vector: %w", err)
	}
	res, err := e.sealSimple(sess, epack.ModeTDM, iv, text, map[string]any{"tool_records": []ToolRecord{record}})
	res.ToolRecords = []ToolRecord{record}
	return res, err
}

// handleGate inspects a pending gate before routing runs, per spec.md
// §4.1. handled is false only in the "accepted" case, where the caller
// should continue on into routing with the freshly set belief.
func (e *Engine) handleGate(sess *session.State, userText string) (Result, bool, error) {
	gate := sess.PendingGate

	if sess.Expired() {
		sess.ClearGate()
		sess.RecordTrace("gate_timeout", nil)
		iv, err := safety.BuildInputVector(userText, e.SafetyConfig, e.Algo)
		if err != nil {
			return Result{}, true, err
		}
		res, err := e.sealSimple(sess, epack.ModeBound, iv, timeoutText, nil)
		return res, true, err
	}

	if IsRevisionIntent(userText) {
		if gate.Payload == nil {
			gate.Payload = map[string]any{}
		}
		revisions, _ := gate.Payload["revisions"].([]string)
		gate.Payload["revisions"] = append(revisions, userText)
		scope, _ := gate.Payload["input_hash"].(string)
		if err := sess.RefreshGate(scope, e.Algo, e.SigningKey); err != nil {
			return Result{}, true, err
		}
		sess.RecordTrace("gate_revised", nil)
		prompt := reflectPrompt(gate.ConfirmToken)
		if gate.Kind == session.GateScaffoldApprove {
			prompt = scaffoldPrompt(gate.ConfirmToken)
		}
		iv, err := safety.BuildInputVector(userText, e.SafetyConfig, e.Algo)
		if err != nil {
			return Result{}, true, err
		}
		res, err := e.sealSimple(sess, gateMode(gate.Kind), iv, prompt, nil)
		return res, true, err
	}

	kind, token := ClassifyGateReply(userText, gate.RequireTokenBinding)
	switch kind {
	case GateReplyRejected:
		sess.ClearGate()
		sess.RecordTrace("gate_rejected", nil)
		iv, err := safety.BuildInputVector(userText, e.SafetyConfig, e.Algo)
		if err != nil {
			return Result{}, true, err
		}
		res, err := e.sealSimple(sess, epack.ModeBound, iv, rejectedText, nil)
		return res, true, err

	case GateReplyMissingToken:
		iv, err := safety.BuildInputVector(userText, e.SafetyConfig, e.Algo)
		if err != nil {
			return Result{}, true, err
		}
		res, err := e.sealSimple(sess, gateMode(gate.Kind), iv, tokenMismatchPrompt(gate.ConfirmToken), nil)
		return res, true, err

	case GateReplyBoundAccept, GateReplyUnboundAccept:
		outcome, err := sess.TryAccept(token, e.SigningKey)
		if err != nil {
			return Result{}, true, err
		}
		switch outcome {
		case session.AcceptReplay:
			sess.RecordTrace("replay_detected", nil)
			iv, ivErr := safety.BuildInputVector(userText, e.SafetyConfig, e.Algo)
			if ivErr != nil {
				return Result{}, true, ivErr
			}
			res, sealErr := e.sealSimple(sess, epack.ModeBound, iv, "That confirmation was already used. Please restate your request.", nil)
			return res, true, sealErr
		case session.AcceptTokenMismatch:
			iv, ivErr := safety.BuildInputVector(userText, e.SafetyConfig, e.Algo)
			if ivErr != nil {
				return Result{}, true, ivErr
			}
			res, sealErr := e.sealSimple(sess, gateMode(gate.Kind), iv, tokenMismatchPrompt(gate.ConfirmToken), nil)
			return res, true, sealErr
		}

		kindWasReflect := gate.Kind == session.GateReflectConfirm
		requiresScaffold, _ := gate.Payload["requires_scaffold"].(bool)
		sess.ClearGate()
		if kindWasReflect {
			sess.Beliefs["reflect_confirmed"] = true
			if requiresScaffold {
				sess.EnqueueWorkflow(string(epack.ModeScaffold))
			}
		} else {
			sess.Beliefs["scaffold_approved"] = true
			sess.EnqueueWorkflow(string(epack.ModeTDM))
		}
		return Result{}, false, nil

	default:
		iv, err := safety.BuildInputVector(userText, e.SafetyConfig, e.Algo)
		if err != nil {
			return Result{}, true, err
		}
		res, err := e.sealSimple(sess, gateMode(gate.Kind), iv, tokenMismatchPrompt(gate.ConfirmToken), nil)
		return res, true, err
	}
}

func (e *Engine) openReflectGate(sess *session.State, iv safety.InputVector) (Result, error) {
	payload := map[string]any{
		"input_hash":        iv.Hash,
		"domain":             string(iv.Domain),
		"complexity":         iv.Complexity,
		"requires_scaffold":  iv.RequiresScaffold,
	}
	if err := sess.OpenGate(session.GateReflectConfirm, payload, iv.Hash, e.Algo, e.SigningKey); err != nil {
		return Result{}, err
	}
	sess.RecordTrace("reflect_gate_opened", nil)
	return e.sealSimple(sess, epack.ModeReflect, iv, reflectPrompt(sess.PendingGate.ConfirmToken), nil)
}

func (e *Engine) openScaffoldGate(sess *session.State, iv safety.InputVector) (Result, error) {
	payload := map[string]any{
		"input_hash": iv.Hash,
		"domain":     string(iv.Domain),
		"complexity": iv.Complexity,
	}
	if err := sess.OpenGate(session.GateScaffoldApprove, payload, iv.Hash, e.Algo, e.SigningKey); err != nil {
		return Result{}, err
	}
	sess.RecordTrace("scaffold_gate_opened", nil)
	return e.sealSimple(sess, epack.ModeScaffold, iv, scaffoldPrompt(sess.PendingGate.ConfirmToken), nil)
}

// runTDM is the TDM generation path: render the strict prompt, call the
// adapter, validate, harden-and-retry on failure up to the profile's
// budget, and fall back to a deterministic CLARIFY on final failure.
func (e *Engine) runTDM(ctx context.Context, sess *session.State, iv safety.InputVector, userText string) (Result, error) {
	a, err := e.Registry.Get(e.Provider, e.Model)
	if err != nil {
		return Result{}, fmt.Errorf("turn: get adapter: %w", err)
	}

	budget := RetryBudget[sess.CurrentProfile]
	if budget < 1 {
		budget = 1
	}

	prompt := tdmPrompt(userText)
	failures := 0
	var verdict validator.Verdict

	for attempt := 0; attempt < budget; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.Timeout)
		result, callErr := a.GenerateText(callCtx, prompt, 0, e.Timeout, nil)
		cancel()
		if callErr != nil {
			failures++
			prompt = hardenPrompt(userText, callErr.Error())
			continue
		}

		verdict = validator.Validate(result.RawText, userText, userText, sess.CurrentProfile, e.RequireEvidence, e.Algo)
		if verdict.Pass {
			escalate, deescalate := sess.ObserveValidation(failures)
			applyEscalation(sess, escalate, deescalate)
			return e.sealSimple(sess, epack.ModeTDM, iv, verdict.Output.Text, nil)
		}
		failures++
		prompt = hardenPrompt(userText, verdict.Reason)
	}

	escalate, deescalate := sess.ObserveValidation(failures)
	applyEscalation(sess, escalate, deescalate)
	return e.sealSimple(sess, epack.ModeTDM, iv, "CLARIFY: I wasn't able to produce a response that passed validation. Could you rephrase your request?", nil)
}

// gateMode maps a pending gate's kind to the routing mode its re-rendered
// prompts should be sealed under.
func gateMode(kind session.GateKind) epack.Mode {
	if kind == session.GateScaffoldApprove {
		return epack.ModeScaffold
	}
	return epack.ModeReflect
}

func applyEscalation(sess *session.State, escalate, deescalate bool) {
	switch {
	case escalate:
		sess.Escalate()
	case deescalate:
		sess.DeEscalate()
	}
}

// sealSimple builds a Decision Object for the given mode/input/assistant
// text, seals it and its EPACK record against the session's chain
// position, and advances that position.
func (e *Engine) sealSimple(sess *session.State, mode epack.Mode, iv safety.InputVector, assistantText string, extra map[string]any) (Result, error) {
	finalHash, err := canonicalize.TaggedHash(e.Algo, []byte(assistantText))
	if err != nil {
		return Result{}, fmt.Errorf("turn: hash assistant text: %w", err)
	}

	decision := &epack.Decision{
		Identity: epack.Identity{DecisionID: iv.Hash + ":" + fmt.Sprint(sess.InteractionCount), CreatedAt: e.Clock()},
		Context:  epack.Context{SessionID: sess.SessionID, Profile: sess.CurrentProfile},
		Input:    epack.Input{PromptHash: iv.Hash},
		Routing:  epack.Routing{Mode: mode, Providers: []string{e.Provider}},
		Policy:   epack.Policy{Profile: sess.CurrentProfile},
		Output:   epack.Output{FinalTextHash: finalHash},
		Build:    epack.Build{Kernel: "ecosphere", KernelVersion: e.KernelVersion},
	}

	manifest := epack.BuildManifest{Kernel: "ecosphere", KernelVersion: e.KernelVersion}
	if err := manifest.Seal(e.Algo); err != nil {
		return Result{}, fmt.Errorf("turn: seal manifest: %w", err)
	}

	builder := epack.Resume(e.Algo, sess.EpackSeq, sess.EpackPrevHash).WithClock(e.Clock).WithRedaction(e.RedactMode, e.RedactAllowlist)
	record, err := builder.Seal(decision, manifest, extra)
	if err != nil {
		return Result{}, fmt.Errorf("turn: seal record: %w", err)
	}
	sess.AdvanceEpack(record.Hash)

	return Result{AssistantText: assistantText, Record: *record, Mode: mode}, nil
}
