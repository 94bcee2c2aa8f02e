package turn

import (
	"fmt"
	"strconv"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// ToolRecord is the fixed shape every tool invocation leaves behind in a
// turn's extra metadata (spec.md §4.1 "Tool dispatch").
type ToolRecord struct {
	Tool     string `json:"tool"`
	ArgsHash string `json:"args_hash"`
	OK       bool   `json:"ok"`
	Output   string `json:"output"`
}

// DispatchTool runs an allow-listed tool against args and returns the
// record of having done so. It never calls an LLM.
func DispatchTool(tool, args string, algo canonicalize.Algorithm) (assistantText string, record ToolRecord) {
	argsHash, _ := canonicalize.TaggedHash(algo, []byte(args))
	record = ToolRecord{Tool: tool, ArgsHash: argsHash}

	switch tool {
	case "calc":
		v, err := Calc(args)
		if err != nil {
			record.OK = false
			record.Output = err.Error()
			return "CLARIFY: " + err.Error(), record
		}
		record.OK = true
		record.Output = formatResult(v)
		return record.Output, record
	case "search":
		record.OK = false
		record.Output = "search tool is not wired to a provider in this deployment"
		return "CLARIFY: search is unavailable right now.", record
	default:
		record.OK = false
		record.Output = "unknown tool"
		return fmt.Sprintf("CLARIFY: unknown tool %q.", tool), record
	}
}

// formatResult renders a calculator result the way an integer-looking
// float should read to a user: "120", not "120.000000".
func formatResult(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
