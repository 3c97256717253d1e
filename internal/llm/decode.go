package llm

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
	"github.com/kaptinlin/jsonschema"

	"github.com/atomizerhq/atomizer/internal/apptype"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeModelJSON parses JSON out of raw model text into v. Models wrap JSON
// in prose and code fences and sometimes stop mid-object, so parsing is
// layered: strict parse of the largest brace-delimited span, then a
// truncation fix, then full repair. Failure returns ModelOutputError
// carrying the raw text.
func DecodeModelJSON(raw string, v any) error {
	candidate := extractJSONSpan(raw)
	if candidate == "" {
		return &apptype.ModelOutputError{Raw: raw, Err: fmt.Errorf("no JSON object found in model output")}
	}

	if err := json.UnmarshalFromString(candidate, v); err == nil {
		return nil
	}

	// Truncated outputs are the common failure; a closing brace often
	// completes the object.
	if err := json.UnmarshalFromString(candidate+"}", v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return &apptype.ModelOutputError{Raw: raw, Err: fmt.Errorf("repair failed: %w", err)}
	}
	if err := json.UnmarshalFromString(repaired, v); err != nil {
		return &apptype.ModelOutputError{Raw: raw, Err: fmt.Errorf("parse after repair failed: %w", err)}
	}
	return nil
}

// extractJSONSpan returns the substring from the first { or [ to the last
// matching } or ], stripping code fences first.
func extractJSONSpan(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end > start {
		return s[start : end+1]
	}
	// Leave an unterminated span for the repair layers.
	return strings.TrimSpace(s[start:])
}

// SchemaValidator checks decoded model output against a JSON Schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles a JSON Schema document.
func NewSchemaValidator(schemaJSON []byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate returns an error naming each violated field.
func (sv *SchemaValidator) Validate(data any) error {
	result := sv.schema.Validate(data)
	if result.IsValid() {
		return nil
	}
	var details []string
	for field, err := range result.Errors {
		details = append(details, fmt.Sprintf("%s: %s", field, err.Message))
	}
	return fmt.Errorf("model output failed schema validation: %s", strings.Join(details, "; "))
}
