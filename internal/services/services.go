package services

import (
	"context"
	"time"

	"github.com/taskmir/tmx/internal/models"
)

// Field is a three-state update descriptor for an optional task field.
// The zero value means "unchanged"; SetField marks a new value; ClearField
// marks an explicit clear.
type Field[T any] struct {
	set   bool
	clear bool
	value T
}

// SetField returns a Field carrying a new value.
func SetField[T any](v T) Field[T] {
	return Field[T]{set: true, value: v}
}

// ClearField returns a Field that explicitly clears the target.
func ClearField[T any]() Field[T] {
	return Field[T]{clear: true}
}

// Value returns the new value and whether one was set.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.set
}

// Cleared reports whether the field should be explicitly cleared.
func (f Field[T]) Cleared() bool { return f.clear }

// Unchanged reports whether the field should be left as-is.
func (f Field[T]) Unchanged() bool { return !f.set && !f.clear }

// TaskPatch describes a partial update to one task. Only fields that are set
// or cleared are transmitted; everything else stays untouched remotely.
type TaskPatch struct {
	ID          string
	Title       Field[string]
	Notes       Field[string]
	Due         Field[string] // date-only, converted to the wire format by the client
	Status      Field[string]
	CompletedAt Field[time.Time]
}

// RemoteStore is the remote task store consumed by the sync engine. One
// instance is bound to one account's credential scope.
type RemoteStore interface {
	// FetchLists retrieves all task lists for the account.
	FetchLists(ctx context.Context) ([]models.TaskList, error)

	// FetchTasks retrieves all tasks in a list, draining pagination
	// internally with a bounded number of pages.
	FetchTasks(ctx context.Context, listID string) ([]models.Task, error)

	// CreateTask creates a task and returns it with its server-assigned id.
	CreateTask(ctx context.Context, listID string, task models.Task) (models.Task, error)

	// UpdateTask applies a partial update to an existing task.
	UpdateTask(ctx context.Context, listID string, patch TaskPatch) error

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, listID, taskID string) error

	// CreateList creates a task list and returns it with its server id.
	CreateList(ctx context.Context, title string) (models.TaskList, error)

	// RenameList changes a list's title.
	RenameList(ctx context.Context, listID, title string) error

	// DeleteList removes a list and all its tasks.
	DeleteList(ctx context.Context, listID string) error

	// Name returns a label for logging (the account name).
	Name() string
}
