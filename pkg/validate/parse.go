// Package validate parses model output and checks it against a schema.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchema only fixes the outer shape. Field values are checked per type by Validate.
const envelopeSchema = `{
  "type": "object",
  "required": ["fields"],
  "properties": {
    "summary": {"type": ["string", "null"]},
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field_name"],
        "properties": {
          "field_name": {"type": "string"}
        }
      }
    }
  }
}`

var compiledEnvelope = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	err := compiler.AddResource("envelope.json", strings.NewReader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("add envelope schema: %w", err)
	}
	return compiler.Compile("envelope.json")
})

// Candidate is a parsed but not yet validated model response.
type Candidate struct {
	Summary string
	Entries []Entry
}

// Entry is one returned field. A missing "value" key decodes as nil.
type Entry struct {
	Name  string
	Value any
}

// ParseResponse recovers the JSON object from raw model output, tolerating code fences
// and surrounding prose. Unparseable output is a MalformedOutput failure; a document
// without a fields list of {field_name, value} objects is a Validation failure.
func ParseResponse(raw string) (*Candidate, error) {
	const op = "validate.ParseResponse"

	doc, err := decodeFirstValid(raw)
	if err != nil {
		return nil, failure.New(failure.KindMalformedOutput, op, err)
	}

	envelope, err := compiledEnvelope()
	if err != nil {
		return nil, failure.New(failure.KindConfiguration, op, err)
	}
	err = envelope.Validate(doc)
	if err != nil {
		return nil, failure.New(failure.KindValidation, op, &Error{
			Issues: []string{"response must contain a fields list of {field_name, value} objects: " + firstLine(err.Error())},
		})
	}

	root := doc.(map[string]any)
	c := &Candidate{}
	if summary, ok := root["summary"].(string); ok {
		c.Summary = strings.TrimSpace(summary)
	}
	for _, item := range root["fields"].([]any) {
		obj := item.(map[string]any)
		c.Entries = append(c.Entries, Entry{
			Name:  strings.TrimSpace(obj["field_name"].(string)),
			Value: obj["value"],
		})
	}
	return c, nil
}

func decodeFirstValid(raw string) (any, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, errors.New("empty model output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONObject(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	var lastErr error
	for _, candidate := range candidates {
		doc, err := decodeJSON(candidate)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("model output is not valid JSON: %w", lastErr)
}

// decodeJSON keeps numbers as json.Number, the representation jsonschema's Validate
// expects. Trailing content after the value is rejected.
func decodeJSON(content string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()

	var doc any
	err := dec.Decode(&doc)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected content after JSON value")
	}
	return doc, nil
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
