package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
)

// Error lists every problem found in one response.
type Error struct {
	Issues []string
}

func (e *Error) Error() string {
	return "response failed validation: " + strings.Join(e.Issues, "; ")
}

// Issues returns the validation issues carried anywhere in err's chain.
func Issues(err error) []string {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Issues
	}
	return nil
}

// Validate checks c against sch and returns the field values in schema order.
// All issues are collected before failing. Unknown field names are ignored, absent
// optional fields are filled with the absence sentinel, an empty list satisfies only an
// optional multi-choice field, numbers are normalized to
// float64 and multi-choice values to []string.
func Validate(c *Candidate, sch *schema.Schema) ([]model.FieldValue, error) {
	const op = "validate.Validate"
	if c == nil || sch == nil {
		return nil, failure.New(failure.KindConfiguration, op, errors.New("candidate and schema are required"))
	}

	returned := make(map[string]any, len(c.Entries))
	for _, e := range c.Entries {
		if _, seen := returned[e.Name]; seen {
			continue
		}
		returned[e.Name] = e.Value
	}

	var issues []string
	values := make([]model.FieldValue, 0, sch.Len())
	for _, f := range sch.Fields() {
		v, ok := returned[f.Name]
		if !ok || v == nil {
			if f.Required {
				issues = append(issues, fmt.Sprintf("missing required field `%s`", f.Name))
				continue
			}
			values = append(values, model.FieldValue{Name: f.Name, Value: schema.AbsenceSentinel})
			continue
		}

		if schema.IsAbsent(v) {
			values = append(values, model.FieldValue{Name: f.Name, Value: schema.AbsenceSentinel})
			continue
		}

		if f.Required && f.Type == schema.FieldTypeMultiChoice {
			if items, ok := schema.StringList(v); ok && len(items) == 0 {
				issues = append(issues, fmt.Sprintf("missing required field `%s`", f.Name))
				continue
			}
		}

		err := f.Check(v)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		values = append(values, model.FieldValue{Name: f.Name, Value: normalize(f, v)})
	}

	if len(issues) > 0 {
		return nil, failure.New(failure.KindValidation, op, &Error{Issues: issues})
	}
	return values, nil
}

func normalize(f schema.Field, v any) any {
	switch f.Type {
	case schema.FieldTypeNumber:
		n, _ := schema.NumberValue(v)
		return n
	case schema.FieldTypeMultiChoice:
		items, _ := schema.StringList(v)
		return items
	default:
		return v
	}
}
