// Package blogpost is the example domain: a blog post entity with a
// JSON-Schema-validated event catalog, a pure reducer, and business
// mutations layered on top of the runtime.
package blogpost

import (
	"errors"

	"github.com/eventfold/entity-sourcing-go/entity"
	"github.com/eventfold/entity-sourcing-go/entity/jsonschemaprovider"
)

// EntityName namespaces every post event, e.g. "post:created".
const EntityName = "post"

// Bare event names as registered in the schema.
const (
	EventCreated        = "created"
	EventTitleUpdated   = "title_updated"
	EventContentUpdated = "content_updated"
	EventTagAdded       = "tag_added"
	EventArchived       = "archived"
)

// Namespaced event names as they appear on envelopes and in storage.
const (
	CreatedEventType        = EntityName + ":" + EventCreated
	TitleUpdatedEventType   = EntityName + ":" + EventTitleUpdated
	ContentUpdatedEventType = EntityName + ":" + EventContentUpdated
	TagAddedEventType       = EntityName + ":" + EventTagAdded
	ArchivedEventType       = EntityName + ":" + EventArchived
)

// ErrPostArchived is the business-rule error for mutations on an archived
// post. It is distinct from entity.ErrReadonlyEntity, which guards the
// lifecycle, not the business state.
var ErrPostArchived = errors.New("post is archived")

// State is the current state of a post, rebuilt by replaying its events.
type State struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Author   string   `json:"author"`
	Tags     []string `json:"tags"`
	Archived bool     `json:"archived"`
}

// Created is the initial event of every post.
type Created struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Author  string   `json:"author"`
	Tags    []string `json:"tags"`
}

// TitleUpdated carries a new title.
type TitleUpdated struct {
	Title string `json:"title"`
}

// ContentUpdated carries new content.
type ContentUpdated struct {
	Content string `json:"content"`
}

// TagAdded carries one added tag.
type TagAdded struct {
	Tag string `json:"tag"`
}

// Archived marks the post as archived, blocking further edits.
type Archived struct{}

const createdSchemaJSON = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"content": {"type": "string"},
		"author": {"type": "string", "minLength": 1},
		"tags": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["title", "content", "author", "tags"],
	"additionalProperties": false
}`

const titleUpdatedSchemaJSON = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1}
	},
	"required": ["title"],
	"additionalProperties": false
}`

const contentUpdatedSchemaJSON = `{
	"type": "object",
	"properties": {
		"content": {"type": "string"}
	},
	"required": ["content"],
	"additionalProperties": false
}`

const tagAddedSchemaJSON = `{
	"type": "object",
	"properties": {
		"tag": {"type": "string", "minLength": 1}
	},
	"required": ["tag"],
	"additionalProperties": false
}`

const archivedSchemaJSON = `{
	"type": "object",
	"additionalProperties": false
}`

const stateSchemaJSON = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"content": {"type": "string"},
		"author": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}},
		"archived": {"type": "boolean"}
	},
	"required": ["title", "content", "author", "tags", "archived"]
}`

// NewSchema builds the post schema with all event definitions and the
// state definition.
func NewSchema() (entity.Schema, error) {
	return entity.DefineSchema(
		EntityName,
		entity.Definition{
			Events: map[string]entity.EventDefinition{
				EventCreated:        jsonschemaprovider.MustEvent[Created](createdSchemaJSON),
				EventTitleUpdated:   jsonschemaprovider.MustEvent[TitleUpdated](titleUpdatedSchemaJSON),
				EventContentUpdated: jsonschemaprovider.MustEvent[ContentUpdated](contentUpdatedSchemaJSON),
				EventTagAdded:       jsonschemaprovider.MustEvent[TagAdded](tagAddedSchemaJSON),
				EventArchived:       jsonschemaprovider.MustEvent[Archived](archivedSchemaJSON),
			},
			State: jsonschemaprovider.MustState(stateSchemaJSON),
		},
		EventCreated,
	)
}

// Reduce folds one event into the state. Unknown event variants fall
// through unchanged so that replaying a stream written by a newer version
// never fails.
func Reduce(state State, event entity.Event) State {
	switch event.EventName {
	case CreatedEventType:
		if body, ok := event.Body.(Created); ok {
			state.Title = body.Title
			state.Content = body.Content
			state.Author = body.Author
			state.Tags = body.Tags
		}

	case TitleUpdatedEventType:
		if body, ok := event.Body.(TitleUpdated); ok {
			state.Title = body.Title
		}

	case ContentUpdatedEventType:
		if body, ok := event.Body.(ContentUpdated); ok {
			state.Content = body.Content
		}

	case TagAddedEventType:
		if body, ok := event.Body.(TagAdded); ok {
			state.Tags = append(state.Tags, body.Tag)
		}

	case ArchivedEventType:
		state.Archived = true

	default:
	}

	return state
}

// NewType builds the post entity type. The options allow injecting a
// deterministic clock and ID generator in tests.
func NewType(options ...entity.TypeOption[State]) (entity.EntityType[State], error) {
	schema, err := NewSchema()
	if err != nil {
		return entity.EntityType[State]{}, err
	}

	return entity.NewEntityType(schema, entity.DefineReducer(schema, Reduce), options...)
}
