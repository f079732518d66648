// Package services defines the RemoteStore interface the sync engine talks
// to, plus its Google Tasks implementation.
//
// The remote store offers independent CRUD calls only, no cross-entity
// transactions. Everything transactional-looking (moves, bulk undo) is built
// above this package by the engine.
//
// Optional task fields use three-state update descriptors so a partial
// update can distinguish "leave unchanged" from "explicitly clear".
package services
