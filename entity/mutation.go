package entity

// Dispatch is the write handle passed into a mutation's business function.
// It queues one event on the bound entity, with the event name fixed by the
// mutation's call site.
type Dispatch func(body any, options ...EventOption) error

// Mutation wraps a business-logic function so that it can only execute
// against a mutable entity, and funnels all of its writes through a single
// dispatch point bound to eventName.
//
// The returned function rejects with ErrReadonlyEntity before invoking fn,
// so domain preconditions inside business methods never need to re-check
// mutability. Any error returned by fn propagates unchanged; nothing is
// queued and state is unchanged unless fn itself called dispatch
// successfully.
func Mutation[S any](e *Entity[S], eventName string, fn func(dispatch Dispatch) error) func() error {
	return func() error {
		if !e.mutable {
			return ErrReadonlyEntity
		}

		dispatch := func(body any, options ...EventOption) error {
			return e.dispatch(eventName, body, options...)
		}

		return fn(dispatch)
	}
}

// ApplyMutation wraps fn with Mutation and executes it immediately.
func ApplyMutation[S any](e *Entity[S], eventName string, fn func(dispatch Dispatch) error) error {
	return Mutation(e, eventName, fn)()
}
