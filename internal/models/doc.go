// Package models defines the data model shared by the sync engine, the
// remote store clients, and the CLI: accounts, task lists, tasks, and
// auxiliary time windows.
//
// Tasks carry either a server-assigned id or a locally generated placeholder
// id. A placeholder exists only between an optimistic create and its remote
// confirmation (or rollback).
package models
