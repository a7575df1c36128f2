package entity

// Reducer folds one event into the previous state, returning the next
// state. It must be pure and deterministic: state is reconstructed by
// replaying the full event history on every load and has to match whatever
// was computed incrementally at write time.
//
// A reducer must be total over all event names of its schema, and it must
// treat an unrecognized event name as a no-op returning the previous state.
// Replay never fails because of an event variant a future writer added.
type Reducer[S any] func(state S, event Event) S

// DefineReducer associates reduce with the schema it is total over.
// The association exists for construction-site clarity only; the reducer is
// returned unchanged.
func DefineReducer[S any](_ Schema, reduce Reducer[S]) Reducer[S] {
	return reduce
}
