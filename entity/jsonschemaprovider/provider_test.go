package jsonschemaprovider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventfold/entity-sourcing-go/entity"
	"github.com/eventfold/entity-sourcing-go/entity/jsonschemaprovider"
)

const openedSchemaJSON = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"labels": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"required": ["title"],
	"additionalProperties": false
}`

type openedBody struct {
	Title  string   `json:"title"`
	Labels []string `json:"labels,omitempty"`
}

func TestEvent_RejectsBrokenSchemas(t *testing.T) {
	_, err := jsonschemaprovider.Event[openedBody](`{"type": "nonsense"}`)
	assert.ErrorIs(t, err, jsonschemaprovider.ErrCompilingSchemaFailed)

	_, err = jsonschemaprovider.Event[openedBody](`not json`)
	assert.ErrorIs(t, err, jsonschemaprovider.ErrCompilingSchemaFailed)
}

func TestMustEvent_PanicsOnBrokenSchemas(t *testing.T) {
	assert.Panics(t, func() {
		jsonschemaprovider.MustEvent[openedBody](`not json`)
	})
}

func TestEventDef_ValidBodyPasses(t *testing.T) {
	def := jsonschemaprovider.MustEvent[openedBody](openedSchemaJSON)

	issues := def.Validate(openedBody{Title: "Broken build", Labels: []string{"ci"}})

	assert.Empty(t, issues)
}

func TestEventDef_ViolationsCarryThePath(t *testing.T) {
	def := jsonschemaprovider.MustEvent[openedBody](openedSchemaJSON)

	issues := def.Validate(map[string]any{"title": ""})

	require.NotEmpty(t, issues)
	assert.Contains(t, issueStrings(issues), "title")
}

func TestEventDef_MissingRequiredPropertyFails(t *testing.T) {
	def := jsonschemaprovider.MustEvent[openedBody](openedSchemaJSON)

	issues := def.Validate(map[string]any{"labels": []string{"ci"}})

	assert.NotEmpty(t, issues)
}

func TestEventDef_ValidatesStructBodiesAsTheirJSONForm(t *testing.T) {
	def := jsonschemaprovider.MustEvent[openedBody](openedSchemaJSON)

	// the empty struct serializes to {"title":""}, which violates minLength
	issues := def.Validate(openedBody{})

	assert.NotEmpty(t, issues)
}

func TestEventDef_DecodeRoundTrip(t *testing.T) {
	def := jsonschemaprovider.MustEvent[openedBody](openedSchemaJSON)

	body, err := def.Decode([]byte(`{"title":"Broken build","labels":["ci","urgent"]}`))
	require.NoError(t, err)

	assert.Equal(t, openedBody{Title: "Broken build", Labels: []string{"ci", "urgent"}}, body)
}

func TestEventDef_DecodeFailsOnCorruptPayloads(t *testing.T) {
	def := jsonschemaprovider.MustEvent[openedBody](openedSchemaJSON)

	_, err := def.Decode([]byte(`{"title":`))

	assert.ErrorIs(t, err, jsonschemaprovider.ErrDecodingBodyFailed)
}

func TestStateDef_Validate(t *testing.T) {
	def := jsonschemaprovider.MustState(`{
		"type": "object",
		"properties": {"open": {"type": "boolean"}},
		"required": ["open"]
	}`)

	assert.Empty(t, def.Validate(map[string]any{"open": true}))
	assert.NotEmpty(t, def.Validate(map[string]any{"open": "yes"}))
}

func TestProvider_WorksAsASchemaDefinition(t *testing.T) {
	schema, err := entity.DefineSchema(
		"ticket",
		entity.Definition{
			Events: map[string]entity.EventDefinition{
				"opened": jsonschemaprovider.MustEvent[openedBody](openedSchemaJSON),
			},
		},
		"opened",
	)
	require.NoError(t, err)

	require.NoError(t, schema.ParseEventByName("opened", openedBody{Title: "Broken build"}))

	err = schema.ParseEventByName("opened", openedBody{})
	var validationErr *entity.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "ticket:opened", validationErr.EventName)
}

func issueStrings(issues []entity.Issue) string {
	joined := ""
	for _, issue := range issues {
		joined += issue.String() + "\n"
	}

	return joined
}
