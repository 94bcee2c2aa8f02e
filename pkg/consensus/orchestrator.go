package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"text/template"

	"github.com/bulwark-run/ecosphere/pkg/adapter"
)

// Status is the orchestrator's terminal outcome for one turn.
type Status string

const (
	StatusPass   Status = "PASS"
	StatusRefuse Status = "REFUSE"
	StatusError  Status = "ERROR"
)

// ErrorCode enumerates the orchestrator's named failure modes (spec.md
// "Error taxonomy").
type ErrorCode string

const (
	ErrParseFailed     ErrorCode = "PARSE_FAILED"
	ErrAnchorMismatch  ErrorCode = "ANCHOR_MISMATCH"
	ErrAdapterTimeout  ErrorCode = "ADAPTER_TIMEOUT"
	ErrAdapterRateLimit ErrorCode = "ADAPTER_RATE_LIMIT"
	ErrAdapterAuth     ErrorCode = "ADAPTER_AUTH"
	ErrAdapterTransient ErrorCode = "ADAPTER_TRANSIENT"
)

// Anchors are the caller-supplied identifiers the model must echo back
// verbatim; a mismatch is a terminal refuse (spec.md §4.4 step 4).
type Anchors struct {
	RunID string
	Epack string
	ARU   string
}

// Claim is one atomic assertion inside a PrimaryOutput, carrying its own
// risk and evidence-strength tags so arbitration can reason per-claim.
type Claim struct {
	Text          string `json:"text"`
	HighRisk      bool   `json:"high_risk"`
	EvidenceLevel string `json:"evidence_level"` // E0..E4
}

// PrimaryOutput is the Primary/Defender/Critic model's parsed response
// (spec.md §4.4 step 3).
type PrimaryOutput struct {
	RunID             string   `json:"run_id"`
	Epack             string   `json:"epack"`
	ARU               string   `json:"aru"`
	Answer            string   `json:"answer"`
	ReasoningTrace    string   `json:"reasoning_trace"`
	Claims            []Claim  `json:"claims"`
	OverallConfidence float64  `json:"overall_confidence"`
	UncertaintyFlags  []string `json:"uncertainty_flags"`
	NextStep          string   `json:"next_step"`
}

// SynthesizerOutput is the Arbiter/Synthesizer model's parsed response.
type SynthesizerOutput struct {
	RunID             string  `json:"run_id"`
	Epack             string  `json:"epack"`
	ARU               string  `json:"aru"`
	Answer            string  `json:"answer"`
	ReasoningTrace    string  `json:"reasoning_trace"`
	OverallConfidence float64 `json:"overall_confidence"`
}

func (a Anchors) matches(runID, epack string) bool {
	return runID == a.RunID && epack == a.Epack
}

// OrchestratorError carries a named error code alongside the underlying
// cause, so callers and the EPACK record can distinguish terminal
// failure classes (spec.md "Error taxonomy").
type OrchestratorError struct {
	Code ErrorCode
	Err  error
}

func (e *OrchestratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("consensus: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("consensus: %s", e.Code)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }

// classifyAdapterErr maps an adapter error's tag onto an orchestrator
// error code.
func classifyAdapterErr(err error) *OrchestratorError {
	switch adapter.Tag(err) {
	case adapter.TagTimeout:
		return &OrchestratorError{Code: ErrAdapterTimeout, Err: err}
	case adapter.TagRateLimit:
		return &OrchestratorError{Code: ErrAdapterRateLimit, Err: err}
	case adapter.TagAuth:
		return &OrchestratorError{Code: ErrAdapterAuth, Err: err}
	default:
		return &OrchestratorError{Code: ErrAdapterTransient, Err: err}
	}
}

// TurnResult is one single-stage or two-stage run's outcome.
type TurnResult struct {
	Status      Status
	Output      string // final answer text
	GateResult  GateResult
	Arbitration *ArbitrationVerdict
	Ledger      []StageEvent
	Err         *OrchestratorError
}

// Orchestrator runs single-stage and two-stage consensus turns against
// a Registry of model adapters.
type Orchestrator struct {
	Registry *adapter.Registry
}

// NewOrchestrator wires an orchestrator to a populated adapter registry.
func NewOrchestrator(reg *adapter.Registry) *Orchestrator {
	return &Orchestrator{Registry: reg}
}

func render(tmplSrc string, data map[string]any) (string, error) {
	tmpl, err := template.New("prompt").Parse(tmplSrc)
	if err != nil {
		return "", fmt.Errorf("consensus: parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("consensus: render template: %w", err)
	}
	return buf.String(), nil
}

func baseVars(anchors Anchors, query string, vc VerificationContext) map[string]any {
	return map[string]any{
		"RunID":     anchors.RunID,
		"Epack":     anchors.Epack,
		"ARU":       anchors.ARU,
		"Query":     query,
		"Verified":  vc.Verified,
		"Role":      vc.Role,
		"RoleLevel": vc.RoleLevel,
		"Scope":     vc.Scope,
	}
}

// callAndParse renders the primary prompt, calls the adapter, and parses
// the JSON response into a PrimaryOutput, retrying through the repair
// prompt up to maxRepair times on parse/schema failure.
func (o *Orchestrator) callAndParse(ctx context.Context, cfg Config, a adapter.Adapter, vars map[string]any, maxRepair int) (PrimaryOutput, string, error) {
	prompt, err := render(cfg.Prompts.Primary, vars)
	if err != nil {
		return PrimaryOutput{}, "", err
	}

	var lastErr error
	var lastRaw string
	for attempt := 0; attempt <= maxRepair; attempt++ {
		res, err := a.GenerateText(ctx, prompt, cfg.AlignmentTemp, cfg.Timeout, nil)
		if err != nil {
			return PrimaryOutput{}, "", classifyAdapterErr(err)
		}
		lastRaw = res.RawText

		var out PrimaryOutput
		if err := json.Unmarshal([]byte(res.RawText), &out); err != nil || out.RunID == "" {
			lastErr = err
			if lastErr == nil {
				lastErr = fmt.Errorf("missing run_id in response")
			}
			repairVars := map[string]any{}
			for k, v := range vars {
				repairVars[k] = v
			}
			repairVars["BadText"] = res.RawText
			repairVars["Error"] = lastErr.Error()
			prompt, err = render(cfg.Prompts.Repair, repairVars)
			if err != nil {
				return PrimaryOutput{}, "", err
			}
			continue
		}
		return out, lastRaw, nil
	}
	return PrimaryOutput{}, lastRaw, &OrchestratorError{Code: ErrParseFailed, Err: lastErr}
}

// RunSingleStage implements the single-stage flow (spec.md §4.4 "Single-stage flow").
func (o *Orchestrator) RunSingleStage(ctx context.Context, cfg Config, anchors Anchors, query string, vc VerificationContext) TurnResult {
	ledger := NewLedger("")
	ledger.Append(StageStart, map[string]any{"run_id": anchors.RunID})

	a, err := o.Registry.Get(cfg.Primary.Provider, cfg.Primary.Model)
	if err != nil {
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrAdapterTransient, Err: err}, Ledger: ledger.Events()}
	}

	vars := baseVars(anchors, query, vc)
	out, raw, err := o.callAndParse(ctx, cfg, a, vars, cfg.MaxRepairAttempts)
	if err != nil {
		oe, _ := err.(*OrchestratorError)
		if oe == nil {
			oe = &OrchestratorError{Code: ErrParseFailed, Err: err}
		}
		return TurnResult{Status: StatusError, Err: oe, Ledger: ledger.Events()}
	}
	ledger.Append(StagePrimaryRaw, map[string]any{"raw": raw})

	if !anchors.matches(out.RunID, out.Epack) {
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrAnchorMismatch}, Ledger: ledger.Events()}
	}

	gate := Gate(out.Answer, out.ReasoningTrace, vc, cfg.ScopeGate)
	answer := out.Answer

	if gate.Action == ActionRewrite {
		ledger.Append(StageScopeGateRewrite, map[string]any{"reason": gate.Violations})
		rewriteVars := map[string]any{}
		for k, v := range vars {
			rewriteVars[k] = v
		}
		rewriteVars["BadText"] = raw
		rewriteVars["Error"] = gate.RewritePrompt
		out2, raw2, err := o.callAndParse(ctx, cfg, a, rewriteVars, 0)
		if err == nil {
			gate2 := Gate(out2.Answer, out2.ReasoningTrace, vc, cfg.ScopeGate)
			if gate2.Action == ActionPass {
				ledger.Append(StageScopeGatePass, nil)
				ledger.Append(StageEnd, map[string]any{"status": StatusPass})
				return TurnResult{Status: StatusPass, Output: out2.Answer, GateResult: gate2, Ledger: ledger.Events()}
			}
			_ = raw2
		}
		ledger.Append(StageScopeGateRefuse, map[string]any{"reason": "rewrite did not converge"})
		ledger.Append(StageEnd, map[string]any{"status": StatusRefuse})
		return TurnResult{Status: StatusRefuse, Output: answer, GateResult: gate, Ledger: ledger.Events()}
	}

	if gate.Action == ActionRefuse {
		ledger.Append(StageScopeGateRefuse, map[string]any{"reason": gate.Violations})
		ledger.Append(StageEnd, map[string]any{"status": StatusRefuse})
		return TurnResult{Status: StatusRefuse, Output: answer, GateResult: gate, Ledger: ledger.Events()}
	}

	ledger.Append(StageScopeGatePass, nil)
	ledger.Append(StageEnd, map[string]any{"status": StatusPass})
	return TurnResult{Status: StatusPass, Output: answer, GateResult: gate, Ledger: ledger.Events()}
}

// debateResult is one role's outcome in the parallel defender/critic fan-out.
type debateResult struct {
	out PrimaryOutput
	raw string
	err error
}

// RunTwoStage implements the two-stage debate flow (spec.md §4.4
// "Two-stage (debate) flow"): Defender and Critic run in parallel with
// independent cancellation scopes; the Synthesizer runs only after both
// complete.
func (o *Orchestrator) RunTwoStage(ctx context.Context, cfg Config, anchors Anchors, query string, vc VerificationContext, domain string, sessionInvocations int) TurnResult {
	ledger := NewLedger("")
	ledger.Append(StageStart, map[string]any{"run_id": anchors.RunID})

	if cfg.Debate == nil {
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrParseFailed, Err: fmt.Errorf("debate not configured")}, Ledger: ledger.Events()}
	}
	if sessionInvocations >= cfg.ChallengerPolicy.MaxInvocationsPerSession {
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrParseFailed, Err: fmt.Errorf("session challenger invocation cap reached")}, Ledger: ledger.Events()}
	}

	defenderAdapter, err := o.Registry.Get(cfg.Debate.Defender.Provider, cfg.Debate.Defender.Model)
	if err != nil {
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrAdapterTransient, Err: err}, Ledger: ledger.Events()}
	}
	criticAdapter, err := o.Registry.Get(cfg.Debate.Critic.Provider, cfg.Debate.Critic.Model)
	if err != nil {
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrAdapterTransient, Err: err}, Ledger: ledger.Events()}
	}

	defenderCtx, cancelDefender := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelDefender()
	criticCtx, cancelCritic := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelCritic()

	vars := baseVars(anchors, query, vc)
	criticVars := map[string]any{}
	for k, v := range vars {
		criticVars[k] = v
	}
	criticVars["CriticMode"] = true

	var wg sync.WaitGroup
	results := make([]debateResult, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		out, raw, err := o.callAndParse(defenderCtx, cfg, defenderAdapter, vars, cfg.MaxRepairAttempts)
		results[0] = debateResult{out: out, raw: raw, err: err}
	}()
	go func() {
		defer wg.Done()
		out, raw, err := o.callAndParse(criticCtx, cfg, criticAdapter, criticVars, cfg.MaxRepairAttempts)
		results[1] = debateResult{out: out, raw: raw, err: err}
	}()
	wg.Wait()

	defenderResult, criticResult := results[0], results[1]
	if defenderResult.err != nil || criticResult.err != nil {
		ledger.Append(StageDebateDefender, map[string]any{"raw": defenderResult.raw})
		ledger.Append(StageDebateCritic, map[string]any{"raw": criticResult.raw})
		ledger.Append(StageEnd, map[string]any{"status": StatusError})
		oe := asOrchestratorError(defenderResult.err)
		if oe == nil {
			oe = asOrchestratorError(criticResult.err)
		}
		return TurnResult{Status: StatusError, Err: oe, Ledger: ledger.Events()}
	}

	ledger.Append(StageDebateDefender, map[string]any{"raw": defenderResult.raw})
	ledger.Append(StageDebateCritic, map[string]any{"raw": criticResult.raw})

	if !anchors.matches(defenderResult.out.RunID, defenderResult.out.Epack) || !anchors.matches(criticResult.out.RunID, criticResult.out.Epack) {
		ledger.Append(StageEnd, map[string]any{"status": StatusError})
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrAnchorMismatch}, Ledger: ledger.Events()}
	}

	synthAdapter, err := o.Registry.Get(cfg.Debate.Synthesizer.Provider, cfg.Debate.Synthesizer.Model)
	if err != nil {
		ledger.Append(StageEnd, map[string]any{"status": StatusError})
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrAdapterTransient, Err: err}, Ledger: ledger.Events()}
	}

	synthVars := map[string]any{}
	for k, v := range vars {
		synthVars[k] = v
	}
	synthVars["DefenderRaw"] = defenderResult.raw
	synthVars["CriticRaw"] = criticResult.raw

	synthPrompt, err := render(cfg.Prompts.Primary, synthVars)
	if err != nil {
		ledger.Append(StageEnd, map[string]any{"status": StatusError})
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrParseFailed, Err: err}, Ledger: ledger.Events()}
	}
	synthRes, err := synthAdapter.GenerateText(ctx, synthPrompt, cfg.AlignmentTemp, cfg.Timeout, nil)
	if err != nil {
		ledger.Append(StageEnd, map[string]any{"status": StatusError})
		return TurnResult{Status: StatusError, Err: classifyAdapterErr(err), Ledger: ledger.Events()}
	}

	var synth SynthesizerOutput
	if err := json.Unmarshal([]byte(synthRes.RawText), &synth); err != nil || synth.RunID == "" {
		ledger.Append(StageSynthesizerRaw, map[string]any{"raw": synthRes.RawText})
		ledger.Append(StageEnd, map[string]any{"status": StatusError})
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrParseFailed, Err: err}, Ledger: ledger.Events()}
	}
	ledger.Append(StageSynthesizerRaw, map[string]any{"raw": synthRes.RawText})

	if !anchors.matches(synth.RunID, synth.Epack) {
		ledger.Append(StageEnd, map[string]any{"status": StatusError})
		return TurnResult{Status: StatusError, Err: &OrchestratorError{Code: ErrAnchorMismatch}, Ledger: ledger.Events()}
	}

	gate := Gate(synth.Answer, synth.ReasoningTrace, vc, cfg.ScopeGate)
	switch gate.Action {
	case ActionPass:
		ledger.Append(StageScopeGatePass, nil)
	case ActionRewrite:
		ledger.Append(StageScopeGateRewrite, map[string]any{"reason": gate.Violations})
	case ActionRefuse:
		ledger.Append(StageScopeGateRefuse, map[string]any{"reason": gate.Violations})
	}

	disagreement := cfg.ChallengerPolicy.DisagreementTriggers(defenderResult.out.Answer, criticResult.out.Answer)
	highRisk := anyHighRiskClaim(defenderResult.out.Claims) || anyHighRiskClaim(criticResult.out.Claims)
	evidenceLow := lowestEvidence(defenderResult.out.Claims) || lowestEvidence(criticResult.out.Claims)

	pack := ChallengePack{
		GateAction:                gate.Action,
		ChallengerAction:          criticChallengerAction(criticResult.out),
		RoleLevel:                 vc.RoleLevel,
		HighRiskClaim:             highRisk,
		ConflictsHighStakes:       disagreement.Trigger && domain == "HIGH_STAKES",
		MissingEvidenceHighStakes: evidenceLow && domain == "HIGH_STAKES",
	}
	verdict := Arbitrate(pack)

	status := StatusPass
	if verdict.Action == ActionRefuse {
		status = StatusRefuse
	} else if verdict.Action == ActionRewrite {
		status = StatusRefuse // rewrite that was not re-attempted downstream is surfaced as non-pass
	}

	ledger.Append(StageEnd, map[string]any{"status": status, "arbitration": verdict.Reason})
	return TurnResult{
		Status:      status,
		Output:      synth.Answer,
		GateResult:  gate,
		Arbitration: &verdict,
		Ledger:      ledger.Events(),
	}
}

func asOrchestratorError(err error) *OrchestratorError {
	if err == nil {
		return nil
	}
	if oe, ok := err.(*OrchestratorError); ok {
		return oe
	}
	return &OrchestratorError{Code: ErrParseFailed, Err: err}
}

func anyHighRiskClaim(claims []Claim) bool {
	for _, c := range claims {
		if c.HighRisk {
			return true
		}
	}
	return false
}

func lowestEvidence(claims []Claim) bool {
	for _, c := range claims {
		if c.EvidenceLevel == "E0" || c.EvidenceLevel == "E1" {
			return true
		}
	}
	return false
}

// criticChallengerAction derives the Critic's recommended action from its
// next_step hint alone: an explicit "refuse" or "rewrite" next_step maps
// directly, anything else is treated as PASS. Uncertainty flags are not
// consulted.
func criticChallengerAction(out PrimaryOutput) Action {
	switch out.NextStep {
	case "refuse":
		return ActionRefuse
	case "rewrite":
		return ActionRewrite
	default:
		return ActionPass
	}
}
