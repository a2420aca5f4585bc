package validate

import (
	"encoding/json"
	"testing"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/model"
	"github.com/Nephrolytics-ai/polyglot-extract/pkg/schema"
	"github.com/stretchr/testify/suite"
)

type ValidateSuite struct {
	suite.Suite
	schema *schema.Schema
}

func TestValidateSuite(t *testing.T) {
	suite.Run(t, new(ValidateSuite))
}

func (s *ValidateSuite) SetupTest() {
	s.schema = schema.MustNew("Call", "", []schema.Field{
		{Name: "name", Label: "Name", Type: schema.FieldTypeText, Required: true},
		{Name: "rating", Label: "Rating", Type: schema.FieldTypeSingleChoice, Required: true, Options: []string{"Good", "Bad"}},
		{Name: "seats", Label: "Seats", Type: schema.FieldTypeNumber},
		{Name: "topics", Label: "Topics", Type: schema.FieldTypeMultiChoice, Options: []string{"pricing", "support"}},
	})
}

func (s *ValidateSuite) TestValidResponsePassesAndIsNormalized() {
	c, err := ParseResponse(`{"summary":" Ana called. ","fields":[
		{"field_name":"name","value":"Ana"},
		{"field_name":"rating","value":"Good"},
		{"field_name":"seats","value":"12"},
		{"field_name":"topics","value":["pricing"]},
		{"field_name":"unexpected","value":"ignored"}]}`)
	s.Require().NoError(err)
	s.Equal("Ana called.", c.Summary)

	values, err := Validate(c, s.schema)
	s.Require().NoError(err)
	s.Equal([]model.FieldValue{
		{Name: "name", Value: "Ana"},
		{Name: "rating", Value: "Good"},
		{Name: "seats", Value: 12.0},
		{Name: "topics", Value: []string{"pricing"}},
	}, values)
}

func (s *ValidateSuite) TestInvalidOptionAndMissingRequiredAreBothReported() {
	c, err := ParseResponse(`{"summary":"x","fields":[{"field_name":"rating","value":"Great"}]}`)
	s.Require().NoError(err)

	_, err = Validate(c, s.schema)
	s.Require().Error(err)
	s.ErrorIs(err, failure.Validation)
	s.True(failure.IsRetryable(err))

	issues := Issues(err)
	s.Require().Len(issues, 2)
	s.Equal("missing required field `name`", issues[0])
	s.Contains(issues[1], `rating: "Great" is not one of`)
	s.Contains(err.Error(), "Great")
	s.Contains(err.Error(), "`name`")
}

func (s *ValidateSuite) TestSentinelPassesForEveryType() {
	c, err := ParseResponse(`{"fields":[
		{"field_name":"name","value":"Not mentioned"},
		{"field_name":"rating","value":"not mentioned"},
		{"field_name":"seats","value":"Not mentioned"},
		{"field_name":"topics","value":"Not mentioned"}]}`)
	s.Require().NoError(err)

	values, err := Validate(c, s.schema)
	s.Require().NoError(err)
	for _, v := range values {
		s.Equal(schema.AbsenceSentinel, v.Value, v.Name)
	}
}

func (s *ValidateSuite) TestMissingOptionalFieldIsFilledWithSentinel() {
	c, err := ParseResponse(`{"fields":[{"field_name":"name","value":"Ana"},{"field_name":"rating","value":"Bad"},{"field_name":"seats","value":null}]}`)
	s.Require().NoError(err)

	values, err := Validate(c, s.schema)
	s.Require().NoError(err)
	s.Equal(schema.AbsenceSentinel, values[2].Value)
	s.Equal(schema.AbsenceSentinel, values[3].Value)
}

func (s *ValidateSuite) TestNullRequiredValueIsMissing() {
	c, err := ParseResponse(`{"fields":[{"field_name":"name","value":null},{"field_name":"rating","value":"Bad"}]}`)
	s.Require().NoError(err)

	_, err = Validate(c, s.schema)
	s.Equal([]string{"missing required field `name`"}, Issues(err))
}

func (s *ValidateSuite) TestTypeErrorsArePrefixedWithFieldName() {
	c, err := ParseResponse(`{"fields":[
		{"field_name":"name","value":12},
		{"field_name":"rating","value":"Good"},
		{"field_name":"seats","value":"a dozen"},
		{"field_name":"topics","value":"pricing"}]}`)
	s.Require().NoError(err)

	_, err = Validate(c, s.schema)
	issues := Issues(err)
	s.Require().Len(issues, 3)
	s.Contains(issues[0], "name: expected text")
	s.Contains(issues[1], "seats: expected a number")
	s.Contains(issues[2], "topics: expected a list")
}

func (s *ValidateSuite) TestFirstDuplicateEntryWins() {
	c, err := ParseResponse(`{"fields":[
		{"field_name":"name","value":"Ana"},
		{"field_name":"name","value":7},
		{"field_name":"rating","value":"Good"}]}`)
	s.Require().NoError(err)

	values, err := Validate(c, s.schema)
	s.Require().NoError(err)
	s.Equal("Ana", values[0].Value)
}

func (s *ValidateSuite) TestParseResponseToleratesFencesAndProse() {
	fenced := "```json\n{\"summary\":\"s\",\"fields\":[{\"field_name\":\"name\",\"value\":\"Ana\"}]}\n```"
	c, err := ParseResponse(fenced)
	s.Require().NoError(err)
	s.Equal("Ana", c.Entries[0].Value)

	prose := "Sure! Here is the record: {\"fields\":[{\"field_name\":\"seats\",\"value\":3}]} Let me know."
	c, err = ParseResponse(prose)
	s.Require().NoError(err)
	s.Equal(json.Number("3"), c.Entries[0].Value)
}

func (s *ValidateSuite) TestParseResponseRejectsNonJSON() {
	_, err := ParseResponse("I could not find any information.")
	s.ErrorIs(err, failure.MalformedOutput)
	s.True(failure.IsRetryable(err))

	_, err = ParseResponse("   ")
	s.ErrorIs(err, failure.MalformedOutput)
}

func (s *ValidateSuite) TestParseResponseRejectsWrongEnvelope() {
	for _, raw := range []string{
		`{"summary":"no fields"}`,
		`{"fields":{"name":"Ana"}}`,
		`{"fields":[{"value":"Ana"}]}`,
		`["name","Ana"]`,
	} {
		_, err := ParseResponse(raw)
		s.ErrorIs(err, failure.Validation, raw)
		s.NotEmpty(Issues(err), raw)
	}
}

func (s *ValidateSuite) TestParseResponseKeepsNumbersAsJSONNumber() {
	c, err := ParseResponse(`{"fields":[{"field_name":"seats","value":12.5},{"field_name":"name","value":"Ana"}]}`)
	s.Require().NoError(err)
	s.Equal(json.Number("12.5"), c.Entries[0].Value)

	values, err := Validate(c, schema.MustNew("Seats", "", []schema.Field{
		{Name: "seats", Type: schema.FieldTypeNumber, Required: true},
	}))
	s.Require().NoError(err)
	s.Equal(12.5, values[0].Value)
}

func (s *ValidateSuite) TestParseResponseRejectsTrailingContent() {
	_, err := decodeJSON(`{"fields":[]} {"fields":[]}`)
	s.Error(err)

	doc, err := decodeJSON("{\"fields\":[]}\n  ")
	s.Require().NoError(err)
	s.Contains(doc, "fields")
}

func (s *ValidateSuite) TestEmptyListFailsOnlyRequiredMultiChoice() {
	required := schema.MustNew("Topics", "", []schema.Field{
		{Name: "topics", Type: schema.FieldTypeMultiChoice, Required: true, Options: []string{"A", "B"}},
	})
	c, err := ParseResponse(`{"fields":[{"field_name":"topics","value":[]}]}`)
	s.Require().NoError(err)

	_, err = Validate(c, required)
	s.ErrorIs(err, failure.Validation)
	s.Equal([]string{"missing required field `topics`"}, Issues(err))

	optional := schema.MustNew("Topics", "", []schema.Field{
		{Name: "topics", Type: schema.FieldTypeMultiChoice, Options: []string{"A", "B"}},
	})
	values, err := Validate(c, optional)
	s.Require().NoError(err)
	s.Equal([]model.FieldValue{{Name: "topics", Value: []string{}}}, values)
}
