// Package structured defines the contract an LLM reply must satisfy for a
// given stage: the named fields it has to carry, the format instructions
// embedded in the prompt, and the parser that turns raw model text back into
// those fields.
package structured

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one required entry in a structured response.
type Field struct {
	Name        string
	Description string
}

// Contract is an ordered set of required response fields.
type Contract struct {
	fields []Field
}

func NewContract(fields ...Field) *Contract {
	return &Contract{fields: fields}
}

// FormatError reports that raw model output did not conform to the contract.
// It is a distinct failure class from a SQL execution error: it means "ask
// the model again", not "feed back a data error".
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "malformed structured response: " + e.Reason
}

// FormatInstructions renders the instruction block appended to prompts. It
// is a pure function of the field list.
func (c *Contract) FormatInstructions() string {
	var sb strings.Builder
	sb.WriteString("The output should be a markdown code snippet formatted in the following schema, ")
	sb.WriteString("including the leading and trailing \"```json\" and \"```\":\n\n")
	sb.WriteString("```json\n{\n")
	for i, f := range c.fields {
		sb.WriteString(fmt.Sprintf("\t%q: string  // %s", f.Name, f.Description))
		if i < len(c.fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n```")
	return sb.String()
}

// extractJSON pulls the JSON object out of raw model text, preferring a
// ```json fenced block, falling back to the outermost brace pair.
func extractJSON(raw string) (string, bool) {
	if idx := strings.Index(raw, "```json"); idx >= 0 {
		rest := raw[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], true
	}
	return "", false
}

// Parse decodes raw model text into the contract's fields. Every declared
// field must be present; anything else fails with a *FormatError.
func (c *Contract) Parse(raw string) (map[string]json.RawMessage, error) {
	body, ok := extractJSON(raw)
	if !ok {
		return nil, &FormatError{Reason: "no JSON object found in model output"}
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	for _, f := range c.fields {
		if _, present := parsed[f.Name]; !present {
			return nil, &FormatError{Reason: fmt.Sprintf("missing required field %q", f.Name)}
		}
	}
	return parsed, nil
}

// StringField decodes a field as a string, tolerating non-string scalars by
// rendering their JSON text.
func StringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), "\"")
}

// BoolField decodes a field as a boolean, accepting the string forms
// "true"/"false" that models frequently emit.
func BoolField(fields map[string]json.RawMessage, name string) bool {
	raw, ok := fields[name]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}

// ObjectField decodes a field into dst when it holds an object. A missing or
// non-object field leaves dst untouched.
func ObjectField(fields map[string]json.RawMessage, name string, dst any) {
	raw, ok := fields[name]
	if !ok {
		return
	}
	_ = json.Unmarshal(raw, dst)
}
