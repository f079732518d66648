package tasks

import (
	"fmt"

	"github.com/taskmir/tmx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ResolveSource Phase = iota
	CreateDest
	DeleteSource
	Compensate
	BulkApply
	UndoReplay
)

func (p Phase) String() string {
	switch p {
	case ResolveSource:
		return "resolve_source"
	case CreateDest:
		return "create_dest"
	case DeleteSource:
		return "delete_source"
	case Compensate:
		return "compensate"
	case BulkApply:
		return "bulk_apply"
	case UndoReplay:
		return "undo_replay"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

func resolveSourceUpdate(task models.Task, account models.Account, listID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveSource,
		Step:    1,
		Total:   3,
		Message: fmt.Sprintf("Resolved %q in %s/%s", task.Title, account, listID),
		Data:    task,
	}
}

func createDestUpdate(account models.Account, listID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreateDest,
		Step:    2,
		Total:   3,
		Message: fmt.Sprintf("Creating copy in %s/%s...", account, listID),
	}
}

func deleteSourceUpdate(account models.Account, listID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DeleteSource,
		Step:    3,
		Total:   3,
		Message: fmt.Sprintf("Deleting original in %s/%s...", account, listID),
	}
}

func compensateUpdate(account models.Account, listID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compensate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Source delete failed, removing copy from %s/%s...", account, listID),
	}
}

func bulkStepUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkApply,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, title),
	}
}

func undoStepUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UndoReplay,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Restoring %s...", step, total, title),
	}
}
