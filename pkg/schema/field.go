package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// AbsenceSentinel is the value a model must return for fields the source does not cover.
const AbsenceSentinel = "Not mentioned"

type FieldType string

const (
	FieldTypeText         FieldType = "text"
	FieldTypeLongText     FieldType = "long_text"
	FieldTypeNumber       FieldType = "number"
	FieldTypeSingleChoice FieldType = "dropdown"
	FieldTypeMultiChoice  FieldType = "multi_select"
)

var fieldTypeAliases = map[string]FieldType{
	"text":          FieldTypeText,
	"short_text":    FieldTypeText,
	"long_text":     FieldTypeLongText,
	"textarea":      FieldTypeLongText,
	"number":        FieldTypeNumber,
	"dropdown":      FieldTypeSingleChoice,
	"single_choice": FieldTypeSingleChoice,
	"select":        FieldTypeSingleChoice,
	"multi_select":  FieldTypeMultiChoice,
	"multi_choice":  FieldTypeMultiChoice,
}

// ParseFieldType accepts the canonical tags and their common aliases.
func ParseFieldType(raw string) (FieldType, error) {
	ft, ok := fieldTypeAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown field type %q", raw)
	}
	return ft, nil
}

func (t FieldType) IsChoice() bool {
	return t == FieldTypeSingleChoice || t == FieldTypeMultiChoice
}

func (t FieldType) valid() bool {
	_, ok := predicates[t]
	return ok
}

// Field describes one output slot. Options is only meaningful for choice types.
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Label    string    `json:"label,omitempty" yaml:"label"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
	Options  []string  `json:"options,omitempty" yaml:"options"`
}

// IsAbsent reports whether v is the absence sentinel, ignoring case and surrounding space.
// Validated results always carry the canonical AbsenceSentinel spelling, so a model's
// "not mentioned" comes back as "Not mentioned".
func IsAbsent(v any) bool {
	s, ok := v.(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), AbsenceSentinel)
}

// Check runs the type predicate for f against v. It returns nil when v is acceptable
// and otherwise an error whose text explains why.
func (f Field) Check(v any) error {
	if IsAbsent(v) {
		return nil
	}
	pred, ok := predicates[f.Type]
	if !ok {
		return fmt.Errorf("unsupported field type %q", f.Type)
	}
	return pred(f, v)
}

type predicate func(f Field, v any) error

var predicates = map[FieldType]predicate{
	FieldTypeText:         checkText,
	FieldTypeLongText:     checkText,
	FieldTypeNumber:       checkNumber,
	FieldTypeSingleChoice: checkSingleChoice,
	FieldTypeMultiChoice:  checkMultiChoice,
}

func checkText(_ Field, v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("expected text, got %s", describe(v))
	}
	return nil
}

func checkNumber(_ Field, v any) error {
	if _, ok := NumberValue(v); !ok {
		return fmt.Errorf("expected a number, got %s", describe(v))
	}
	return nil
}

func checkSingleChoice(f Field, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("expected one of %s, got %s", quoteAll(f.Options), describe(v))
	}
	if !lo.Contains(f.Options, s) {
		return fmt.Errorf("%q is not one of %s", s, quoteAll(f.Options))
	}
	return nil
}

func checkMultiChoice(f Field, v any) error {
	items, ok := StringList(v)
	if !ok {
		return fmt.Errorf("expected a list drawn from %s, got %s", quoteAll(f.Options), describe(v))
	}
	invalid := lo.Filter(items, func(item string, _ int) bool {
		return !lo.Contains(f.Options, item)
	})
	if len(invalid) > 0 {
		return fmt.Errorf("%s not in %s", quoteAll(invalid), quoteAll(f.Options))
	}
	return nil
}

// NumberValue converts the accepted numeric encodings to float64. Strings must parse
// as a finite real number.
func NumberValue(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int32:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// StringList converts a decoded JSON array of strings to []string. A bare string is
// not a list.
func StringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("text %q", t)
	case bool:
		return fmt.Sprintf("boolean %t", t)
	case []any, []string:
		return "a list"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func quoteAll(values []string) string {
	quoted := lo.Map(values, func(v string, _ int) string {
		return strconv.Quote(v)
	})
	return "[" + strings.Join(quoted, ", ") + "]"
}
