package prompt

import (
	"encoding/json"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/utils"
	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
)

type responseEnvelope struct {
	Summary string          `json:"summary" jsonschema:"description=Two or three sentence summary of the source"`
	Fields  []responseField `json:"fields" jsonschema:"description=One entry per schema field"`
}

type responseField struct {
	FieldName string `json:"field_name"`
	Value     any    `json:"value"`
}

// ResponseSchema returns the JSON schema structured-output providers should enforce.
// field_name is restricted to the schema's field names.
func ResponseSchema(sch *schema.Schema) (model.JSONSchema, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	reflected := reflector.Reflect(&responseEnvelope{})

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	var out map[string]any
	err = json.Unmarshal(raw, &out)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	delete(out, "$schema")
	delete(out, "$id")

	item := fieldItemSchema(out)
	if item != nil {
		props, _ := item["properties"].(map[string]any)
		if props != nil {
			names := lo.Map(sch.Fields(), func(f schema.Field, _ int) any { return f.Name })
			props["field_name"] = map[string]any{"type": "string", "enum": names}
			props["value"] = map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "number"},
					map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			}
		}
	}
	return out, nil
}

func fieldItemSchema(root map[string]any) map[string]any {
	props, _ := root["properties"].(map[string]any)
	fields, _ := props["fields"].(map[string]any)
	item, _ := fields["items"].(map[string]any)
	return item
}
