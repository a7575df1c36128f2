package entity_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eventfold/entity-sourcing-go/entity"
)

// The test fixture is a minimal "ticket" entity with three event variants
// and hand-rolled definitions, so the core tests stay independent of any
// validation provider.

const (
	ticketEntityName = "ticket"

	eventOpened    = "opened"
	eventCommented = "commented"
	eventClosed    = "closed"

	openedEventType    = "ticket:opened"
	commentedEventType = "ticket:commented"
	closedEventType    = "ticket:closed"
)

type opened struct {
	Title string `json:"title"`
}

type commented struct {
	Text string `json:"text"`
}

type closed struct{}

type ticketState struct {
	Title    string `json:"title"`
	Comments int    `json:"comments"`
	Open     bool   `json:"open"`
}

// fakeEventDef validates that the body is of type T and passes an optional
// extra check; Decode unmarshals the stored payload back into T.
type fakeEventDef[T any] struct {
	check func(body T) []entity.Issue
}

func (d fakeEventDef[T]) Validate(body any) []entity.Issue {
	typed, ok := body.(T)
	if !ok {
		return []entity.Issue{{Message: fmt.Sprintf("body is not a %T", *new(T))}}
	}

	if d.check != nil {
		return d.check(typed)
	}

	return nil
}

func (d fakeEventDef[T]) Decode(payloadJSON []byte) (any, error) {
	var body T
	if err := json.Unmarshal(payloadJSON, &body); err != nil {
		return nil, err
	}

	return body, nil
}

type fakeStateDef struct{}

func (fakeStateDef) Validate(state any) []entity.Issue {
	if _, ok := state.(ticketState); !ok {
		return []entity.Issue{{Message: "state is not a ticketState"}}
	}

	return nil
}

func requireTitle(body opened) []entity.Issue {
	if body.Title == "" {
		return []entity.Issue{{Path: []string{"title"}, Message: "must not be empty"}}
	}

	return nil
}

func requireText(body commented) []entity.Issue {
	if body.Text == "" {
		return []entity.Issue{{Path: []string{"text"}, Message: "must not be empty"}}
	}

	return nil
}

func ticketSchema(t testing.TB) entity.Schema {
	t.Helper()

	schema, err := entity.DefineSchema(
		ticketEntityName,
		entity.Definition{
			Events: map[string]entity.EventDefinition{
				eventOpened:    fakeEventDef[opened]{check: requireTitle},
				eventCommented: fakeEventDef[commented]{check: requireText},
				eventClosed:    fakeEventDef[closed]{},
			},
			State: fakeStateDef{},
		},
		eventOpened,
	)
	require.NoError(t, err)

	return schema
}

func reduceTicket(state ticketState, event entity.Event) ticketState {
	switch event.EventName {
	case openedEventType:
		body, ok := event.Body.(opened)
		if !ok {
			return state
		}
		state.Title = body.Title
		state.Open = true

	case commentedEventType:
		if _, ok := event.Body.(commented); ok {
			state.Comments++
		}

	case closedEventType:
		state.Open = false

	default:
		// unknown event variants are skipped, replay must not fail
	}

	return state
}

func fixedClock() time.Time {
	return time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
}

func sequentialIDs() entity.IDFunc {
	next := 0
	return func() string {
		next++
		return fmt.Sprintf("id-%d", next)
	}
}

func ticketType(t testing.TB, options ...entity.TypeOption[ticketState]) entity.EntityType[ticketState] {
	t.Helper()

	entityType, err := entity.NewEntityType(
		ticketSchema(t),
		entity.DefineReducer(ticketSchema(t), reduceTicket),
		options...,
	)
	require.NoError(t, err)

	return entityType
}

func deterministicTicketType(t testing.TB) entity.EntityType[ticketState] {
	t.Helper()

	return ticketType(t,
		entity.WithClock[ticketState](fixedClock),
		entity.WithIDGenerator[ticketState](sequentialIDs()),
	)
}

func givenOpenTicket(t testing.TB) *entity.Entity[ticketState] {
	t.Helper()

	e, err := deterministicTicketType(t).Create("ticket-1", opened{Title: "Broken build"})
	require.NoError(t, err)

	return e
}

func comment(e *entity.Entity[ticketState], text string) error {
	return entity.ApplyMutation(e, eventCommented, func(dispatch entity.Dispatch) error {
		return dispatch(commented{Text: text})
	})
}

func closeTicket(e *entity.Entity[ticketState]) error {
	return entity.ApplyMutation(e, eventClosed, func(dispatch entity.Dispatch) error {
		return dispatch(closed{})
	})
}
