// Package prompt renders a schema and source text into provider-ready instructions.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	"github.com/samber/lo"
	"github.com/tyler-sommer/stick"
)

const (
	DefaultSystemPrompt = "You are an expert analyzer that extracts structured information from transcripts and documents. " +
		"Always return valid JSON that matches the requested format."

	responseName    = "extraction_result"
	exampleFieldMax = 3
)

const userTemplate = `Extract structured information from the source text below for the record type "{{ schema_name }}".
{{ description_line }}
Fields to extract (JSON):
{{ fields_json }}

Instructions:
{{ rules }}

Respond with a single JSON object in exactly this shape:
{{ shape }}

Example response:
{{ example }}

Source text:
"""
{{ source }}
"""
`

const responseShape = `{"summary": "<two or three sentence summary of the source>", "fields": [{"field_name": "<field name>", "value": <extracted value>}]}`

type Payload struct {
	System         string
	User           string
	ResponseName   string
	ResponseSchema model.JSONSchema
}

// Request converts the payload into a generation request.
func (p Payload) Request() model.GenerationRequest {
	return model.GenerationRequest{
		SystemPrompt:   p.System,
		Prompt:         p.User,
		ResponseName:   p.ResponseName,
		ResponseSchema: p.ResponseSchema,
	}
}

// Builder is stateless apart from its template environment and is safe for concurrent use.
type Builder struct {
	env    *stick.Env
	system string
}

type Option func(*Builder)

func WithSystemPrompt(system string) Option {
	return func(b *Builder) {
		if strings.TrimSpace(system) != "" {
			b.system = system
		}
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		env:    stick.New(nil),
		system: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the prompt for text against sch. The output depends only on its inputs.
func (b *Builder) Build(text string, sch *schema.Schema) (Payload, error) {
	const op = "prompt.Builder.Build"
	if sch == nil {
		return Payload{}, failure.New(failure.KindConfiguration, op, errors.New("schema is required"))
	}

	fields := sch.Fields()
	fieldsJSON, err := json.MarshalIndent(describeFields(fields), "", "  ")
	if err != nil {
		return Payload{}, utils.WrapIfNotNil(err)
	}
	example, err := json.Marshal(exampleResponse(fields))
	if err != nil {
		return Payload{}, utils.WrapIfNotNil(err)
	}

	descriptionLine := ""
	if sch.Description() != "" {
		descriptionLine = "Description: " + sch.Description() + "\n"
	}

	vars := map[string]stick.Value{
		"schema_name":      sch.Name(),
		"description_line": descriptionLine,
		"fields_json":      string(fieldsJSON),
		"rules":            numbered(rulesFor(fields)),
		"shape":            responseShape,
		"example":          string(example),
		"source":           strings.TrimSpace(text),
	}

	var out strings.Builder
	err = b.env.Execute(userTemplate, &out, vars)
	if err != nil {
		return Payload{}, utils.WrapIfNotNil(fmt.Errorf("render prompt: %w", err))
	}

	responseSchema, err := ResponseSchema(sch)
	if err != nil {
		return Payload{}, utils.WrapIfNotNil(err)
	}

	return Payload{
		System:         b.system,
		User:           out.String(),
		ResponseName:   responseName,
		ResponseSchema: responseSchema,
	}, nil
}

type fieldDescription struct {
	FieldName  string   `json:"field_name"`
	FieldLabel string   `json:"field_label"`
	FieldType  string   `json:"field_type"`
	IsRequired bool     `json:"is_required"`
	Options    []string `json:"options,omitempty"`
}

func describeFields(fields []schema.Field) []fieldDescription {
	return lo.Map(fields, func(f schema.Field, _ int) fieldDescription {
		d := fieldDescription{
			FieldName:  f.Name,
			FieldLabel: f.Label,
			FieldType:  string(f.Type),
			IsRequired: f.Required,
		}
		if f.Type.IsChoice() {
			d.Options = f.Options
		}
		return d
	})
}

func rulesFor(fields []schema.Field) []string {
	rules := []string{
		"Return an entry for every field listed above, using the field_name exactly as given.",
		fmt.Sprintf("If the source does not contain the information for a field, use the exact value %q. Never invent or guess a value.", schema.AbsenceSentinel),
	}

	types := lo.Uniq(lo.Map(fields, func(f schema.Field, _ int) schema.FieldType { return f.Type }))
	if lo.Contains(types, schema.FieldTypeNumber) {
		rules = append(rules, "For number fields return a bare JSON number without units or words.")
	}
	if lo.Contains(types, schema.FieldTypeSingleChoice) {
		rules = append(rules, "For dropdown fields return exactly one of the listed options, spelled and capitalized exactly as listed.")
	}
	if lo.Contains(types, schema.FieldTypeMultiChoice) {
		rules = append(rules, "For multi_select fields return a JSON array containing only listed options.")
	}
	if lo.Contains(types, schema.FieldTypeText) || lo.Contains(types, schema.FieldTypeLongText) {
		rules = append(rules, "For text fields return a short phrase; long_text fields may use several sentences.")
	}
	rules = append(rules,
		`Put a brief summary of the source in "summary".`,
		"Return only the JSON object, with no markdown fences or commentary.",
	)
	return rules
}

func numbered(lines []string) string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strconv.Itoa(i+1) + ". " + line
	}
	return strings.Join(out, "\n")
}

type exampleField struct {
	FieldName string `json:"field_name"`
	Value     any    `json:"value"`
}

type exampleEnvelope struct {
	Summary string         `json:"summary"`
	Fields  []exampleField `json:"fields"`
}

func exampleResponse(fields []schema.Field) exampleEnvelope {
	n := min(len(fields), exampleFieldMax)
	out := exampleEnvelope{
		Summary: "A brief summary of the source.",
		Fields:  make([]exampleField, 0, n),
	}
	for _, f := range fields[:n] {
		out.Fields = append(out.Fields, exampleField{FieldName: f.Name, Value: exampleValue(f)})
	}
	return out
}

func exampleValue(f schema.Field) any {
	switch f.Type {
	case schema.FieldTypeNumber:
		return 42
	case schema.FieldTypeSingleChoice:
		return f.Options[0]
	case schema.FieldTypeMultiChoice:
		return f.Options[:min(len(f.Options), 2)]
	case schema.FieldTypeLongText:
		return "Several sentences describing " + strings.ToLower(f.Label) + "."
	default:
		return "Example " + strings.ToLower(f.Label)
	}
}
