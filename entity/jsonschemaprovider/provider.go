// Package jsonschemaprovider implements entity.EventDefinition and
// entity.StateDefinition on top of compiled JSON Schemas, so that event
// bodies and state snapshots are validated against declarative schemas
// instead of hand-written checks.
package jsonschemaprovider

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/eventfold/entity-sourcing-go/entity"
)

var (
	// ErrCompilingSchemaFailed is returned when a schema document cannot be
	// parsed or compiled.
	ErrCompilingSchemaFailed = errors.New("compiling the json schema failed")

	// ErrDecodingBodyFailed is returned when a stored payload cannot be
	// unmarshaled into the definition's body type.
	ErrDecodingBodyFailed = errors.New("decoding the event body failed")
)

// EventDef validates event bodies of type T against a compiled JSON
// Schema and decodes stored payloads back into T.
type EventDef[T any] struct {
	schema *jsonschema.Schema
}

// Event compiles schemaJSON into an event definition for bodies of type T.
func Event[T any](schemaJSON string) (EventDef[T], error) {
	schema, err := compile(schemaJSON)
	if err != nil {
		return EventDef[T]{}, err
	}

	return EventDef[T]{schema: schema}, nil
}

// MustEvent is like Event but panics on compile errors. Intended for
// package-level schema definitions where a broken schema is a programming
// error.
func MustEvent[T any](schemaJSON string) EventDef[T] {
	def, err := Event[T](schemaJSON)
	if err != nil {
		panic(err)
	}

	return def
}

// Validate checks the body against the schema and reports every violation
// with its path into the document.
func (d EventDef[T]) Validate(body any) []entity.Issue {
	return validate(d.schema, body)
}

// Decode unmarshals a stored payload into a value of type T.
func (d EventDef[T]) Decode(payloadJSON []byte) (any, error) {
	var body T
	if err := jsoniter.ConfigFastest.Unmarshal(payloadJSON, &body); err != nil {
		return nil, errors.Join(ErrDecodingBodyFailed, err)
	}

	return body, nil
}

// StateDef validates state snapshots against a compiled JSON Schema.
type StateDef struct {
	schema *jsonschema.Schema
}

// State compiles schemaJSON into a state definition.
func State(schemaJSON string) (StateDef, error) {
	schema, err := compile(schemaJSON)
	if err != nil {
		return StateDef{}, err
	}

	return StateDef{schema: schema}, nil
}

// MustState is like State but panics on compile errors.
func MustState(schemaJSON string) StateDef {
	def, err := State(schemaJSON)
	if err != nil {
		panic(err)
	}

	return def
}

// Validate checks the state against the schema.
func (d StateDef) Validate(state any) []entity.Issue {
	return validate(d.schema, state)
}

func compile(schemaJSON string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, errors.Join(ErrCompilingSchemaFailed, err)
	}

	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, errors.Join(ErrCompilingSchemaFailed, err)
	}

	return schema, nil
}

// validate round-trips the value through JSON so that struct bodies are
// seen by the validator exactly as they will be stored.
func validate(schema *jsonschema.Schema, value any) []entity.Issue {
	document, err := jsoniter.ConfigFastest.Marshal(value)
	if err != nil {
		return []entity.Issue{{Message: fmt.Sprintf("value is not serializable: %s", err)}}
	}

	var decoded any
	if err = jsoniter.ConfigFastest.Unmarshal(document, &decoded); err != nil {
		return []entity.Issue{{Message: fmt.Sprintf("value is not valid json: %s", err)}}
	}

	if err = schema.Validate(decoded); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return issuesFrom(validationErr)
		}

		return []entity.Issue{{Message: err.Error()}}
	}

	return nil
}

// issuesFrom flattens the validator's error tree into one issue per leaf
// cause, keeping the instance location as the issue path.
func issuesFrom(validationErr *jsonschema.ValidationError) []entity.Issue {
	if len(validationErr.Causes) == 0 {
		return []entity.Issue{{
			Path:    pathFrom(validationErr.InstanceLocation),
			Message: validationErr.Message,
		}}
	}

	var issues []entity.Issue
	for _, cause := range validationErr.Causes {
		issues = append(issues, issuesFrom(cause)...)
	}

	return issues
}

func pathFrom(instanceLocation string) []string {
	trimmed := strings.TrimPrefix(instanceLocation, "/")
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "/")
}
