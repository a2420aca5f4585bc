package model

import (
	"context"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
)

type SchemaStore interface {
	Schema(ctx context.Context, templateID string) (*schema.Schema, error)
}

// FieldValue is one extracted value. Value is a string, a float64 for number fields, or
// a []string for multi-choice fields. Absent information is schema.AbsenceSentinel.
type FieldValue struct {
	Name  string `json:"field_name"`
	Value any    `json:"value"`
}

type ExtractionResult struct {
	Summary string       `json:"summary"`
	Fields  []FieldValue `json:"fields"`
	// SourceText is the normalized text the prompt was built from.
	SourceText string             `json:"source_text,omitempty"`
	Attempts   int                `json:"attempts"`
	Metadata   GenerationMetadata `json:"metadata,omitempty"`
}

// Value returns the extracted value for name.
func (r *ExtractionResult) Value(name string) (any, bool) {
	for _, fv := range r.Fields {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return nil, false
}

// AsMap returns the field-name to value mapping.
func (r *ExtractionResult) AsMap() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for _, fv := range r.Fields {
		out[fv.Name] = fv.Value
	}
	return out
}
