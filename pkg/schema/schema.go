// Package schema models the caller-defined record shape an extraction must fill.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
)

// Schema is an immutable, ordered set of fields. Build one with New.
type Schema struct {
	name        string
	description string
	fields      []Field
	index       map[string]int
}

// New validates the definition and returns a Schema that owns a private copy of fields.
// Field order is preserved exactly as given.
func New(name string, description string, fields []Field) (*Schema, error) {
	const op = "schema.New"
	if len(fields) == 0 {
		return nil, failure.New(failure.KindConfiguration, op, errors.New("schema must define at least one field"))
	}

	s := &Schema{
		name:        strings.TrimSpace(name),
		description: strings.TrimSpace(description),
		fields:      make([]Field, 0, len(fields)),
		index:       make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			return nil, failure.Newf(failure.KindConfiguration, op, "field %d has no name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, failure.Newf(failure.KindConfiguration, op, "duplicate field name %q", f.Name)
		}
		if !f.Type.valid() {
			return nil, failure.Newf(failure.KindConfiguration, op, "field %q has unsupported type %q", f.Name, f.Type)
		}
		if f.Type.IsChoice() && len(f.Options) == 0 {
			return nil, failure.Newf(failure.KindConfiguration, op, "choice field %q needs at least one option", f.Name)
		}
		if strings.TrimSpace(f.Label) == "" {
			f.Label = f.Name
		}
		f.Options = append([]string(nil), f.Options...)
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustNew is New for static definitions; it panics on an invalid schema.
func MustNew(name string, description string, fields []Field) *Schema {
	s, err := New(name, description, fields)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string {
	return s.name
}

func (s *Schema) Description() string {
	return s.description
}

// Fields returns a copy of the fields in definition order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	for i, f := range s.fields {
		f.Options = append([]string(nil), f.Options...)
		out[i] = f
	}
	return out
}

func (s *Schema) Len() int {
	return len(s.fields)
}

func (s *Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	f := s.fields[i]
	f.Options = append([]string(nil), f.Options...)
	return f, true
}

func (s *Schema) String() string {
	return fmt.Sprintf("%s (%d fields)", s.name, len(s.fields))
}
