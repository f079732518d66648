package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/shared"
)

// Undo replays the structural inverse of the bulk operation the record was
// issued for. Records are single-use: a second replay fails with
// shared.ErrUndoConsumed before touching any state.
//
// If the affected list was deleted remotely in the interim, the per-task
// remote calls fail with the store's not-found error and the undo reports
// those failures cleanly; it never recreates the list.
func (e *Engine) Undo(ctx context.Context, prog chan<- ProgressUpdate, rec *UndoRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil undo record", shared.ErrInvalidArgument)
	}
	if err := rec.consume(); err != nil {
		return err
	}

	switch rec.Kind {
	case UndoComplete:
		return e.undoComplete(ctx, prog, rec)
	case UndoDelete:
		return e.undoDelete(ctx, prog, rec)
	case UndoMove:
		return e.undoMove(ctx, prog, rec)
	case UndoSetDue:
		return e.undoSetDue(ctx, prog, rec)
	default:
		return fmt.Errorf("%w: unknown undo kind %d", shared.ErrInvalidArgument, rec.Kind)
	}
}

// undoComplete locates each completed task by id and toggles it back to
// pending.
func (e *Engine) undoComplete(ctx context.Context, prog chan<- ProgressUpdate, rec *UndoRecord) error {
	store, err := e.store(rec.Account)
	if err != nil {
		return err
	}

	var errs []error
	for i, t := range rec.Tasks {
		e.sendProgress(prog, undoStepUpdate(i+1, len(rec.Tasks), t.Task.Title))

		if _, err := e.setCompletionSync(ctx, store, rec.Account, rec.ListID, t.Task.ID, false); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Task.Title, err))
		}
	}
	return errors.Join(errs...)
}

// undoDelete recreates each deleted task in its original list. The remote
// store assigns fresh ids; original time windows are restored under the new
// id.
func (e *Engine) undoDelete(ctx context.Context, prog chan<- ProgressUpdate, rec *UndoRecord) error {
	store, err := e.store(rec.Account)
	if err != nil {
		return err
	}

	var errs []error
	for i, t := range rec.Tasks {
		e.sendProgress(prog, undoStepUpdate(i+1, len(rec.Tasks), t.Task.Title))

		created, err := e.createSync(ctx, store, rec.Account, rec.ListID, t.Task)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Task.Title, err))
			continue
		}

		if t.HadWindow && t.Window != nil && e.wins != nil {
			if err := e.wins.Save(created.ID, *t.Window); err != nil {
				e.logger.Warn("failed to restore time window", "id", created.ID, "err", err)
			}
		}
	}
	return errors.Join(errs...)
}

// undoMove moves each task back from the destination to the original source.
// The forward move recorded the destination-assigned id, so the moved copy is
// addressed directly; the title fallback only covers records from before the
// id was captured.
func (e *Engine) undoMove(ctx context.Context, prog chan<- ProgressUpdate, rec *UndoRecord) error {
	var errs []error
	for i, t := range rec.Tasks {
		e.sendProgress(prog, undoStepUpdate(i+1, len(rec.Tasks), t.Task.Title))

		destID := t.DestID
		if destID == "" {
			var ok bool
			destID, ok = e.findByTitle(rec.DestAccount, rec.DestListID, t.Task.Title)
			if !ok {
				errs = append(errs, fmt.Errorf("%s: %w at destination", t.Task.Title, shared.ErrTaskNotFound))
				continue
			}
		}

		if _, err := e.MoveTask(ctx, prog, destID, rec.DestAccount, rec.DestListID, rec.Account, rec.ListID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Task.Title, err))
		}
	}
	return errors.Join(errs...)
}

// undoSetDue restores each task's original due string, and its original time
// window, clearing windows that did not exist before the forward operation.
func (e *Engine) undoSetDue(ctx context.Context, prog chan<- ProgressUpdate, rec *UndoRecord) error {
	store, err := e.store(rec.Account)
	if err != nil {
		return err
	}

	var errs []error
	for i, t := range rec.Tasks {
		e.sendProgress(prog, undoStepUpdate(i+1, len(rec.Tasks), t.Task.Title))

		if err := e.setDueSync(ctx, store, rec.Account, rec.ListID, t.Task.ID, t.OrigDue); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Task.Title, err))
			continue
		}

		if e.wins == nil {
			continue
		}
		if t.HadWindow && t.Window != nil {
			if err := e.wins.Save(t.Task.ID, *t.Window); err != nil {
				e.logger.Warn("failed to restore time window", "id", t.Task.ID, "err", err)
			}
		} else {
			if err := e.wins.Delete(t.Task.ID); err != nil {
				e.logger.Warn("failed to clear time window", "id", t.Task.ID, "err", err)
			}
		}
	}
	return errors.Join(errs...)
}

// findByTitle locates a task by exact title in local state. Ambiguous under
// duplicate titles, which is why forward moves record ids instead.
func (e *Engine) findByTitle(account models.Account, listID, title string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tasks[listKey{Account: account, ListID: listID}] {
		if t.Title == title {
			return t.ID, true
		}
	}
	return "", false
}
