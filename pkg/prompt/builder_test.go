package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/stretchr/testify/suite"
)

type BuilderSuite struct {
	suite.Suite
	schema *schema.Schema
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) SetupTest() {
	s.schema = schema.MustNew("Sales Call", "Inbound sales call review", []schema.Field{
		{Name: "customer_name", Label: "Customer Name", Type: schema.FieldTypeText, Required: true},
		{Name: "seats", Label: "Seats", Type: schema.FieldTypeNumber},
		{Name: "rating", Label: "Call Rating", Type: schema.FieldTypeSingleChoice, Required: true, Options: []string{"Good", "Bad"}},
		{Name: "topics", Label: "Topics", Type: schema.FieldTypeMultiChoice, Options: []string{"pricing", "support", "onboarding"}},
	})
}

func (s *BuilderSuite) TestBuildIsDeterministic() {
	b := NewBuilder()
	first, err := b.Build("The customer, Ana, wants 12 seats.", s.schema)
	s.Require().NoError(err)
	second, err := NewBuilder().Build("The customer, Ana, wants 12 seats.", s.schema)
	s.Require().NoError(err)

	s.Equal(first.User, second.User)
	s.Equal(first.System, second.System)
	s.Equal(first.ResponseSchema, second.ResponseSchema)
}

func (s *BuilderSuite) TestBuildDescribesEveryField() {
	payload, err := NewBuilder().Build("source text here", s.schema)
	s.Require().NoError(err)

	user := payload.User
	s.Contains(user, `record type "Sales Call"`)
	s.Contains(user, "Description: Inbound sales call review")
	for _, f := range s.schema.Fields() {
		s.Contains(user, `"field_name": "`+f.Name+`"`)
		s.Contains(user, `"field_label": "`+f.Label+`"`)
		s.Contains(user, `"field_type": "`+string(f.Type)+`"`)
	}
	s.Contains(user, `"is_required": true`)
	s.Contains(user, `"Good",`)
	s.Contains(user, `"onboarding"`)
	s.Contains(user, "source text here")
	s.Contains(payload.System, "valid JSON")
}

func (s *BuilderSuite) TestBuildStatesAbsenceRuleAndShape() {
	payload, err := NewBuilder().Build("text", s.schema)
	s.Require().NoError(err)

	s.Contains(payload.User, `use the exact value "Not mentioned"`)
	s.Contains(payload.User, "Never invent or guess a value")
	s.Contains(payload.User, responseShape)
	s.Contains(payload.User, "1. Return an entry for every field")
}

func (s *BuilderSuite) TestExampleUsesFirstThreeFields() {
	payload, err := NewBuilder().Build("text", s.schema)
	s.Require().NoError(err)

	s.Contains(payload.User, `{"field_name":"customer_name","value":"Example customer name"}`)
	s.Contains(payload.User, `{"field_name":"seats","value":42}`)
	s.Contains(payload.User, `{"field_name":"rating","value":"Good"}`)
	s.NotContains(payload.User, `{"field_name":"topics"`)
}

func (s *BuilderSuite) TestMultiChoiceExampleUsesFirstTwoOptions() {
	sch := schema.MustNew("Tags", "", []schema.Field{
		{Name: "topics", Label: "Topics", Type: schema.FieldTypeMultiChoice, Options: []string{"a", "b", "c"}},
	})
	payload, err := NewBuilder().Build("text", sch)
	s.Require().NoError(err)
	s.Contains(payload.User, `{"field_name":"topics","value":["a","b"]}`)
	s.NotContains(payload.User, "Description:")
}

func (s *BuilderSuite) TestSystemPromptOverride() {
	payload, err := NewBuilder(WithSystemPrompt("custom system")).Build("text", s.schema)
	s.Require().NoError(err)
	s.Equal("custom system", payload.System)
	s.Equal("custom system", payload.Request().SystemPrompt)
	s.Equal(payload.User, payload.Request().Prompt)
}

func (s *BuilderSuite) TestBuildRequiresSchema() {
	_, err := NewBuilder().Build("text", nil)
	s.Error(err)
}

func (s *BuilderSuite) TestResponseSchemaRestrictsFieldNames() {
	out, err := ResponseSchema(s.schema)
	s.Require().NoError(err)

	raw, err := json.Marshal(out)
	s.Require().NoError(err)
	text := string(raw)
	s.Contains(text, `"enum":["customer_name","seats","rating","topics"]`)
	s.Contains(text, `"summary"`)
	s.True(strings.Contains(text, `"anyOf"`))
	s.NotContains(text, `"$schema"`)
}
