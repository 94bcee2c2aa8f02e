package validator

import (
	"fmt"
	"regexp"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// Region is one protected span of text: a fenced code block or a
// balanced JSON-like brace block. Nested fences/braces are independent
// child regions — see DESIGN.md's Open Question decision — addressed by
// a JSON-pointer-style Path so selective disclosure or debugging can
// name a specific region without relying on positional order alone.
type Region struct {
	Path    string
	Content string
}

var fencePattern = regexp.MustCompile("(?s)```.*?```")

// ExtractRegions walks text in order and returns every protected region:
// first all fenced code blocks, then every top-level balanced `{...}`
// block found outside of any fence (with its own nested blocks as child
// regions). Extraction order is deterministic for a given text.
func ExtractRegions(text string) []Region {
	var regions []Region

	fenceSpans := fencePattern.FindAllStringIndex(text, -1)
	for i, span := range fenceSpans {
		content := text[span[0]:span[1]]
		regions = append(regions, Region{Path: fmt.Sprintf("/protected/fence/%d", i), Content: content})
	}

	nonFence := stripSpans(text, fenceSpans)
	jsonRegions := extractBraceBlocks(nonFence, "/protected/json")
	regions = append(regions, jsonRegions...)

	return regions
}

func stripSpans(text string, spans [][]int) string {
	if len(spans) == 0 {
		return text
	}
	out := make([]byte, 0, len(text))
	last := 0
	for _, span := range spans {
		out = append(out, text[last:span[0]]...)
		last = span[1]
	}
	out = append(out, text[last:]...)
	return string(out)
}

// braceFrame tracks one open '{' while scanning: where it started, which
// region path it will become (once closed), and how many direct children
// it has seen so far (for numbering their paths).
type braceFrame struct {
	start    int
	path     string
	children int
}

// extractBraceBlocks finds every balanced {...} span in a single
// left-to-right scan, assigning each one a JSON-pointer-style path that
// nests under its enclosing block, so nested blocks are distinct regions
// per DESIGN.md's Open Question decision. An unbalanced trailing '{' is
// simply ignored (no region emitted for it).
func extractBraceBlocks(text string, basePath string) []Region {
	var regions []Region
	var stack []braceFrame
	topChildren := 0

	for i, c := range text {
		switch c {
		case '{':
			var path string
			if len(stack) == 0 {
				path = fmt.Sprintf("%s/%d", basePath, topChildren)
				topChildren++
			} else {
				parent := &stack[len(stack)-1]
				path = fmt.Sprintf("%s/nested/%d", parent.path, parent.children)
				parent.children++
			}
			stack = append(stack, braceFrame{start: i, path: path})
		case '}':
			if len(stack) == 0 {
				continue
			}
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			regions = append(regions, Region{Path: frame.path, Content: text[frame.start : i+1]})
		}
	}
	return regions
}

// ProtectedHash computes a deterministic tagged hash over the ordered
// list of region contents, so two texts with the same protected content
// in the same order hash identically regardless of what surrounds them.
func ProtectedHash(regions []Region, algo canonicalize.Algorithm) (string, error) {
	contents := make([]string, len(regions))
	for i, r := range regions {
		contents[i] = r.Content
	}
	return canonicalize.CanonicalTaggedHash(algo, contents)
}

// CheckProtectedRegions verifies that assistantText holds exactly the
// protected regions of userText, content-for-content and in the same
// order; a region dropped or added on either side fails the check —
// preventing the model from silently rewriting a region
// the user asked it to preserve (spec.md §4.5 stage 4).
func CheckProtectedRegions(userText, assistantText string, algo canonicalize.Algorithm) (pass bool, reason string, err error) {
	userRegions := ExtractRegions(userText)
	if len(userRegions) == 0 {
		return true, "", nil
	}
	assistantRegions := ExtractRegions(assistantText)

	userHash, err := ProtectedHash(userRegions, algo)
	if err != nil {
		return false, "", err
	}
	assistantHash, err := ProtectedHash(assistantRegions, algo)
	if err != nil {
		return false, "", err
	}
	if userHash != assistantHash {
		return false, "protected-region content diverged between input and output", nil
	}
	return true, "", nil
}
