// Package entity implements an event-sourcing runtime for Go: entities are
// reconstructed by replaying an ordered sequence of events through a pure
// reducer, mutations append new events instead of mutating state directly,
// and persistence is delegated to a pluggable storage adapter.
//
// The building blocks are composed bottom-up:
//
//   - DefineSchema binds an entity name, provider-produced validators and
//     the initial event name into a Schema.
//   - DefineReducer associates a pure fold function with that schema.
//   - NewEntityType combines both into a constructor for Entity instances,
//     with an injectable clock and ID generator.
//   - Mutation wraps business functions so they can only run against
//     mutable instances and write through a single dispatch point.
//   - NewRepository binds an entity type to an Adapter and coordinates
//     load-and-replay and atomic commit.
//
// The core performs no validation itself (it calls the schema's
// definitions, see the jsonschemaprovider package) and holds no storage
// logic (see the memoryengine, sqliteengine and postgresengine packages).
package entity
