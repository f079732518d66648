// Package repositories provides SQLite-backed persistence for auxiliary task
// metadata. The remote task store has no concept of time windows, so they
// live locally keyed by task id and follow tasks through deletes, moves, and
// their undos.
package repositories
