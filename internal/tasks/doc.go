// Package tasks implements the optimistic local-first synchronization engine.
//
// The core abstraction is Engine, which mirrors task/list data from two
// independent remote accounts into a local in-memory model. Mutations apply
// synchronously to local state for instant feedback, then reconcile against
// the remote store in the background; failures roll the affected task back to
// its pre-mutation snapshot. Cross-list and cross-account moves run as a
// create-then-delete saga with compensation, and bulk operations over a
// selection return single-use undo records.
//
// Long-running operations emit progress updates via channels for non-blocking
// status reporting to CLI/UI layers.
package tasks
