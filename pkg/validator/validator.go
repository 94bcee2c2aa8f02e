package validator

import (
	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
	"github.com/bulwark-run/ecosphere/pkg/epack"
)

// Stage identifies which pipeline stage produced a verdict.
type Stage string

const (
	StageSchema    Stage = "schema"
	StageEvidence  Stage = "evidence"
	StageAlignment Stage = "alignment"
	StageProtected Stage = "protected"
)

// Verdict is one attempt's full validation result, recorded so profile
// escalation can consult the failure shape (spec.md §4.5).
type Verdict struct {
	Pass           bool
	FailedStage    Stage
	Reason         string
	AlignmentScore float64
	Output         *Output
}

// Validate runs the four-stage pipeline against rawJSON, the model's raw
// response text, in order, stopping at the first failing stage.
func Validate(rawJSON, promptText, userText string, profile epack.Profile, requireEvidence bool, algo canonicalize.Algorithm) Verdict {
	out, err := ValidateSchema(rawJSON)
	if err != nil {
		return Verdict{Pass: false, FailedStage: StageSchema, Reason: err.Error()}
	}

	if pass, reason := CheckEvidenceGate(out, requireEvidence); !pass {
		return Verdict{Pass: false, FailedStage: StageEvidence, Reason: reason, Output: out}
	}

	pass, score := CheckAlignment(promptText, out.Text, profile)
	if !pass {
		return Verdict{Pass: false, FailedStage: StageAlignment, Reason: "alignment score below profile threshold", AlignmentScore: score, Output: out}
	}

	if pass, reason, err := CheckProtectedRegions(userText, out.Text, algo); err != nil {
		return Verdict{Pass: false, FailedStage: StageProtected, Reason: "protected-region check errored: " + err.Error(), Output: out}
	} else if !pass {
		return Verdict{Pass: false, FailedStage: StageProtected, Reason: reason, Output: out}
	}

	return Verdict{Pass: true, AlignmentScore: score, Output: out}
}
