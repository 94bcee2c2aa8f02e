// Package validator implements the turn engine's output validator: the
// four-stage pipeline applied to raw model output before it reaches a
// user (spec.md §4.5).
//
// Grounded on the teacher's pkg/firewall/firewall.go for JSON Schema
// compilation and validation via santhosh-tekuri/jsonschema/v5.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SourceType, EvidenceStrength, and VerificationStatus are the closed
// enumerations a citation's fields must fall within (spec.md §4.1's
// citation schema).
var (
	SourceTypes        = []string{"peer_reviewed", "preprint", "industry_report", "primary_source", "news", "government", "other"}
	EvidenceStrengths  = []string{"strong", "moderate", "weak", "anecdotal"}
	VerificationStates = []string{"verified", "unverified", "disputed", "retracted"}
)

const outputSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["text"],
  "properties": {
    "text": {"type": "string", "minLength": 1},
    "disclosure": {"type": "string"},
    "assumptions": {"type": "array", "items": {"type": "string"}},
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["title", "authors_or_org", "year", "source_type", "evidence_strength", "verification_status"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "authors_or_org": {"type": "string", "minLength": 1},
          "year": {"type": "integer", "minimum": 1000, "maximum": 3000},
          "source_type": {"enum": ["peer_reviewed", "preprint", "industry_report", "primary_source", "news", "government", "other"]},
          "evidence_strength": {"enum": ["strong", "moderate", "weak", "anecdotal"]},
          "verification_status": {"enum": ["verified", "unverified", "disputed", "retracted"]},
          "identifier": {"type": "string"},
          "notes": {"type": "string"}
        }
      }
    }
  }
}`

const outputSchemaURL = "https://ecosphere.local/schema/output.schema.json"

// evidenceViewSchemaJSON describes epack.View, the selectively-disclosed
// Merkle projection returned by POST /evidence-view.
const evidenceViewSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["view_id", "epack_root", "view_policy_id", "disclosed", "sealed", "proofs", "view_hash"],
  "properties": {
    "view_id": {"type": "string"},
    "epack_root": {"type": "string"},
    "view_policy_id": {"type": "string"},
    "disclosed": {"type": "object"},
    "sealed": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "commitment"],
        "properties": {
          "path": {"type": "string"},
          "commitment": {"type": "string"},
          "reason": {"type": "string"}
        }
      }
    },
    "proofs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["leaf_path", "leaf_hash", "root", "proof_path"],
        "properties": {
          "leaf_path": {"type": "string"},
          "leaf_hash": {"type": "string"},
          "root": {"type": "string"},
          "proof_path": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["side", "sibling_hash"],
              "properties": {
                "side": {"enum": ["L", "R"]},
                "sibling_hash": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "view_hash": {"type": "string"}
  }
}`

var compiledOutputSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(outputSchemaURL, strings.NewReader(outputSchemaJSON)); err != nil {
		panic(fmt.Sprintf("validator: failed to register output schema: %v", err))
	}
	compiled, err := c.Compile(outputSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("validator: failed to compile output schema: %v", err))
	}
	compiledOutputSchema = compiled
}

// Schemas exposes every named JSON Schema the kernel validates output
// against, or otherwise publishes, for the HTTP layer's /schemas and
// /schema/{name} endpoints.
var Schemas = map[string]string{
	"output":        outputSchemaJSON,
	"evidence-view": evidenceViewSchemaJSON,
}

// Citation mirrors the closed citation schema from spec.md §4.1.
type Citation struct {
	Title               string `json:"title"`
	AuthorsOrOrg        string `json:"authors_or_org"`
	Year                int    `json:"year"`
	SourceType          string `json:"source_type"`
	EvidenceStrength    string `json:"evidence_strength"`
	VerificationStatus  string `json:"verification_status"`
	Identifier          string `json:"identifier,omitempty"`
	Notes               string `json:"notes,omitempty"`
}

// Output is the raw model JSON parsed into Go types, once schema
// validation has already passed.
type Output struct {
	Text        string     `json:"text"`
	Disclosure  string     `json:"disclosure,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
	Assumptions []string   `json:"assumptions,omitempty"`
}

// ValidateSchema parses rawJSON as a generic object, validates it against
// the compiled output schema, then decodes it into an Output.
func ValidateSchema(rawJSON string) (*Output, error) {
	var generic any
	if err := json.Unmarshal([]byte(rawJSON), &generic); err != nil {
		return nil, fmt.Errorf("validator: invalid JSON: %w", err)
	}
	if err := compiledOutputSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("validator: schema validation failed: %w", err)
	}

	var out Output
	if err := json.Unmarshal([]byte(rawJSON), &out); err != nil {
		return nil, fmt.Errorf("validator: decode output: %w", err)
	}
	return &out, nil
}
