package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/services"
	"github.com/taskmir/tmx/internal/shared"
)

// UndoKind identifies which bulk operation an undo record reverses.
type UndoKind int

const (
	UndoComplete UndoKind = iota
	UndoDelete
	UndoMove
	UndoSetDue
)

func (k UndoKind) String() string {
	switch k {
	case UndoComplete:
		return "complete"
	case UndoDelete:
		return "delete"
	case UndoMove:
		return "move"
	case UndoSetDue:
		return "set_due"
	default:
		return ""
	}
}

// UndoTask captures one task's pre-operation state within a bulk operation.
type UndoTask struct {
	Task      models.Task        // snapshot before the forward operation
	DestID    string             // destination-assigned id (moves only)
	OrigDue   string             // original due string (set-due only)
	Window    *models.TimeWindow // original time window, if any
	HadWindow bool
}

// UndoRecord is a single-use receipt for one bulk operation. Replaying it
// applies the structural inverse of the forward operation; a second replay
// fails with shared.ErrUndoConsumed.
type UndoRecord struct {
	Kind        UndoKind
	Account     models.Account
	ListID      string
	DestAccount models.Account // moves only
	DestListID  string         // moves only
	Tasks       []UndoTask

	used atomic.Bool
}

// Count returns the number of tasks the record covers.
func (r *UndoRecord) Count() int { return len(r.Tasks) }

func (r *UndoRecord) consume() error {
	if !r.used.CompareAndSwap(false, true) {
		return shared.ErrUndoConsumed
	}
	return nil
}

// BulkComplete marks every selected, not-yet-completed task as completed and
// returns an undo record covering exactly the tasks it changed. Tasks that
// were already completed are left alone. The selection is cleared on return.
func (e *Engine) BulkComplete(ctx context.Context, prog chan<- ProgressUpdate, ids []string, account models.Account, listID string) (*UndoRecord, error) {
	store, err := e.store(account)
	if err != nil {
		return nil, err
	}
	defer e.ClearSelection()

	affected := e.snapshotTasks(account, listID, ids, func(t models.Task) bool {
		return !t.Completed()
	})

	var undoTasks []UndoTask
	var errs []error

	for i, snap := range affected {
		e.sendProgress(prog, bulkStepUpdate(i+1, len(affected), snap.Title))

		if _, err := e.setCompletionSync(ctx, store, account, listID, snap.ID, true); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", snap.Title, err))
			continue
		}
		undoTasks = append(undoTasks, UndoTask{Task: snap})
	}

	if len(undoTasks) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, fmt.Errorf("%w: no pending tasks in selection", shared.ErrInvalidInput)
	}

	rec := &UndoRecord{Kind: UndoComplete, Account: account, ListID: listID, Tasks: undoTasks}
	return rec, errors.Join(errs...)
}

// BulkDelete deletes the selected tasks, capturing full snapshots plus each
// task's time window so the undo can recreate them. The selection is cleared
// on return.
func (e *Engine) BulkDelete(ctx context.Context, prog chan<- ProgressUpdate, ids []string, account models.Account, listID string) (*UndoRecord, error) {
	store, err := e.store(account)
	if err != nil {
		return nil, err
	}
	defer e.ClearSelection()

	affected := e.snapshotTasks(account, listID, ids, nil)

	var undoTasks []UndoTask
	var errs []error

	for i, snap := range affected {
		e.sendProgress(prog, bulkStepUpdate(i+1, len(affected), snap.Title))

		window, hadWindow := e.lookupWindow(snap.ID)

		if err := e.deleteSync(ctx, store, account, listID, snap.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", snap.Title, err))
			continue
		}

		if hadWindow {
			if err := e.wins.Delete(snap.ID); err != nil {
				e.logger.Warn("failed to drop time window", "id", snap.ID, "err", err)
			}
		}

		undoTasks = append(undoTasks, UndoTask{Task: snap, Window: window, HadWindow: hadWindow})
	}

	if len(undoTasks) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, fmt.Errorf("%w: no matching tasks in selection", shared.ErrInvalidInput)
	}

	rec := &UndoRecord{Kind: UndoDelete, Account: account, ListID: listID, Tasks: undoTasks}
	return rec, errors.Join(errs...)
}

// BulkMove moves the selected tasks through the move saga one at a time,
// recording each destination-assigned id in the undo record so the undo can
// address the moved copy directly instead of re-deriving it by title. The
// selection is cleared on return.
func (e *Engine) BulkMove(ctx context.Context, prog chan<- ProgressUpdate, ids []string, srcAccount models.Account, srcListID string, dstAccount models.Account, dstListID string) (*UndoRecord, error) {
	if _, err := e.store(srcAccount); err != nil {
		return nil, err
	}
	if _, err := e.store(dstAccount); err != nil {
		return nil, err
	}
	defer e.ClearSelection()

	affected := e.snapshotTasks(srcAccount, srcListID, ids, nil)

	var undoTasks []UndoTask
	var errs []error

	for i, snap := range affected {
		e.sendProgress(prog, bulkStepUpdate(i+1, len(affected), snap.Title))

		created, err := e.MoveTask(ctx, prog, snap.ID, srcAccount, srcListID, dstAccount, dstListID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", snap.Title, err))
			continue
		}
		undoTasks = append(undoTasks, UndoTask{Task: snap, DestID: created.ID})
	}

	if len(undoTasks) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, fmt.Errorf("%w: no matching tasks in selection", shared.ErrInvalidInput)
	}

	rec := &UndoRecord{
		Kind:        UndoMove,
		Account:     srcAccount,
		ListID:      srcListID,
		DestAccount: dstAccount,
		DestListID:  dstListID,
		Tasks:       undoTasks,
	}
	return rec, errors.Join(errs...)
}

// BulkSetDueDate overwrites the due date on the selected tasks, capturing
// each task's original due string and time window first. A non-nil window is
// stored for every affected task. The selection is cleared on return.
func (e *Engine) BulkSetDueDate(ctx context.Context, prog chan<- ProgressUpdate, ids []string, account models.Account, listID string, newDue string, window *models.TimeWindow) (*UndoRecord, error) {
	store, err := e.store(account)
	if err != nil {
		return nil, err
	}
	if newDue != "" {
		if _, err := models.DueToWire(newDue); err != nil {
			return nil, err
		}
	}
	defer e.ClearSelection()

	affected := e.snapshotTasks(account, listID, ids, nil)

	var undoTasks []UndoTask
	var errs []error

	for i, snap := range affected {
		e.sendProgress(prog, bulkStepUpdate(i+1, len(affected), snap.Title))

		origWindow, hadWindow := e.lookupWindow(snap.ID)

		if err := e.setDueSync(ctx, store, account, listID, snap.ID, newDue); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", snap.Title, err))
			continue
		}

		if window != nil && e.wins != nil {
			if err := e.wins.Save(snap.ID, *window); err != nil {
				e.logger.Warn("failed to save time window", "id", snap.ID, "err", err)
			}
		}

		undoTasks = append(undoTasks, UndoTask{
			Task:      snap,
			OrigDue:   snap.Due,
			Window:    origWindow,
			HadWindow: hadWindow,
		})
	}

	if len(undoTasks) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, fmt.Errorf("%w: no matching tasks in selection", shared.ErrInvalidInput)
	}

	rec := &UndoRecord{Kind: UndoSetDue, Account: account, ListID: listID, Tasks: undoTasks}
	return rec, errors.Join(errs...)
}

// snapshotTasks clones the tasks in (account, listID) whose ids appear in
// ids and pass the filter, preserving list order.
func (e *Engine) snapshotTasks(account models.Account, listID string, ids []string, keep func(models.Task) bool) []models.Task {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.Task
	for _, t := range e.tasks[listKey{Account: account, ListID: listID}] {
		if _, ok := wanted[t.ID]; !ok {
			continue
		}
		if keep != nil && !keep(t) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

func (e *Engine) lookupWindow(taskID string) (*models.TimeWindow, bool) {
	if e.wins == nil {
		return nil, false
	}
	w, err := e.wins.Get(taskID)
	if err != nil {
		if !errors.Is(err, shared.ErrWindowNotFound) {
			e.logger.Warn("failed to read time window", "id", taskID, "err", err)
		}
		return nil, false
	}
	return w, true
}

// setCompletionSync applies a completion change locally and awaits the
// remote update, rolling back on failure. Used by bulk operations and undo,
// which need to know the per-task outcome before building their records.
func (e *Engine) setCompletionSync(ctx context.Context, store services.RemoteStore, account models.Account, listID, taskID string, completed bool) (models.Task, error) {
	key := listKey{Account: account, ListID: listID}

	e.mu.Lock()
	i, ok := e.findTask(account, listID, taskID)
	if !ok {
		e.mu.Unlock()
		return models.Task{}, fmt.Errorf("%w: %s in %s/%s", shared.ErrTaskNotFound, taskID, account, listID)
	}
	current := e.tasks[key][i]
	if current.Completed() == completed {
		out := current.Clone()
		e.mu.Unlock()
		return out, nil
	}
	snap := taskSnapshot{account: account, listID: listID, index: i, task: current.Clone()}

	changed := current.Clone()
	if completed {
		now := nowUTC()
		changed.Status = models.StatusCompleted
		changed.CompletedAt = &now
	} else {
		changed.Status = models.StatusPending
		changed.CompletedAt = nil
	}
	e.tasks[key][i] = changed.Clone()
	snap.applied = e.bumpVersion(taskID)
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)

	if models.IsPlaceholderID(taskID) {
		return changed, nil
	}

	if err := store.UpdateTask(ctx, listID, togglePatch(changed)); err != nil {
		e.rollbackReplace(snap, err)
		return models.Task{}, err
	}
	return changed, nil
}

// deleteSync applies a delete locally and awaits the remote delete, rolling
// back on failure.
func (e *Engine) deleteSync(ctx context.Context, store services.RemoteStore, account models.Account, listID, taskID string) error {
	key := listKey{Account: account, ListID: listID}

	e.mu.Lock()
	i, ok := e.findTask(account, listID, taskID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s in %s/%s", shared.ErrTaskNotFound, taskID, account, listID)
	}
	snap := taskSnapshot{account: account, listID: listID, index: i, task: e.tasks[key][i].Clone()}
	e.tasks[key] = append(e.tasks[key][:i], e.tasks[key][i+1:]...)
	snap.applied = e.bumpVersion(taskID)
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)

	if models.IsPlaceholderID(taskID) {
		return nil
	}

	if err := store.DeleteTask(ctx, listID, taskID); err != nil {
		e.rollbackInsert(snap, err)
		return err
	}
	return nil
}

// createSync creates a task remotely and inserts the confirmed copy into
// local state. Used by undo, where the remote id must be known before the
// local insert.
func (e *Engine) createSync(ctx context.Context, store services.RemoteStore, account models.Account, listID string, task models.Task) (models.Task, error) {
	draft := task.Clone()
	draft.ID = ""
	draft.Position = ""

	created, err := store.CreateTask(ctx, listID, draft)
	if err != nil {
		return models.Task{}, err
	}

	key := listKey{Account: account, ListID: listID}
	e.mu.Lock()
	e.tasks[key] = append(e.tasks[key], created.Clone())
	e.bumpVersion(created.ID)
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)
	return created, nil
}

// setDueSync applies a due-date change locally and awaits the remote update,
// rolling back on failure. An empty due is an explicit clear.
func (e *Engine) setDueSync(ctx context.Context, store services.RemoteStore, account models.Account, listID, taskID, due string) error {
	key := listKey{Account: account, ListID: listID}

	e.mu.Lock()
	i, ok := e.findTask(account, listID, taskID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s in %s/%s", shared.ErrTaskNotFound, taskID, account, listID)
	}
	snap := taskSnapshot{account: account, listID: listID, index: i, task: e.tasks[key][i].Clone()}

	changed := snap.task.Clone()
	changed.Due = due
	e.tasks[key][i] = changed.Clone()
	snap.applied = e.bumpVersion(taskID)
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)

	if models.IsPlaceholderID(taskID) {
		return nil
	}

	patch := services.TaskPatch{ID: taskID}
	if due == "" {
		patch.Due = services.ClearField[string]()
	} else {
		patch.Due = services.SetField(due)
	}

	if err := store.UpdateTask(ctx, listID, patch); err != nil {
		e.rollbackReplace(snap, err)
		return err
	}
	return nil
}
