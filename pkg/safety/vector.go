package safety

import (
	"strings"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// Domain is the coarse subject-matter tag a turn's input carries forward
// into routing.
type Domain string

const (
	DomainGeneral    Domain = "GENERAL"
	DomainTechnical  Domain = "TECHNICAL"
	DomainHighStakes Domain = "HIGH_STAKES"
)

var highStakesKeywords = []string{
	"medical", "diagnosis", "prescri", "legal advice", "lawsuit", "suicide",
	"self-harm", "financial advice", "invest", "tax filing", "visa status",
	"immigration", "custody",
}

var technicalKeywords = []string{
	"code", "function", "algorithm", "compile", "stack trace", "regex",
	"database", "api", "kubernetes", "docker", "sql", "debug",
}

// TagDomain classifies text by keyword presence, HIGH_STAKES taking
// priority over TECHNICAL over GENERAL.
func TagDomain(text string) Domain {
	lower := strings.ToLower(text)
	for _, kw := range highStakesKeywords {
		if strings.Contains(lower, kw) {
			return DomainHighStakes
		}
	}
	for _, kw := range technicalKeywords {
		if strings.Contains(lower, kw) {
			return DomainTechnical
		}
	}
	return DomainGeneral
}

// Complexity bucket thresholds (token count), and the reflect/scaffold
// gates derived from them (spec.md §4.1: "requires_reflect (>= threshold
// A)", "requires_scaffold (>= threshold B > A)").
const (
	ReflectThreshold  = 40
	ScaffoldThreshold = 120
)

// Complexity buckets a token count into a small integer scale so routing
// never consults the raw count directly.
func Complexity(tokenCount int) int {
	switch {
	case tokenCount >= ScaffoldThreshold:
		return 3
	case tokenCount >= ReflectThreshold:
		return 2
	case tokenCount > 10:
		return 1
	default:
		return 0
	}
}

func tokenCount(text string) int {
	return len(tokenize(text))
}

// InputVector is the turn engine's pure, fully-reproducible summary of
// one turn's input text, consumed by routing (spec.md §4.1).
type InputVector struct {
	Text             string
	Hash             string
	Safe             bool
	RiskScore        float64
	Domain           Domain
	TokenCount       int
	Complexity       int
	RequiresReflect  bool
	RequiresScaffold bool
}

// BuildInputVector computes the full InputVector for raw turn text.
func BuildInputVector(text string, cfg Config, algo canonicalize.Algorithm) (InputVector, error) {
	hash, err := canonicalize.TaggedHash(algo, []byte(text))
	if err != nil {
		return InputVector{}, err
	}

	verdict := Evaluate(text, cfg)
	tc := tokenCount(text)
	complexity := Complexity(tc)

	return InputVector{
		Text:             text,
		Hash:             hash,
		Safe:             verdict.Safe,
		RiskScore:        verdict.RiskScore,
		Domain:           TagDomain(text),
		TokenCount:       tc,
		Complexity:       complexity,
		RequiresReflect:  complexity >= 2,
		RequiresScaffold: complexity >= 3,
	}, nil
}
