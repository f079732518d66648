package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/shared"
)

// MoveTask relocates a task across lists or accounts. The remote store has
// no atomic move, so this runs as a saga: create at the destination first
// (compensable), then delete at the source (not compensable). If the source
// delete fails after the destination create succeeded, the destination copy
// is deleted again and the move reported as failed with the source untouched.
//
// The task is resolved by id against the authoritative local state, not the
// caller's possibly stale copy. A never-synced placeholder has nothing to
// delete remotely, so its source delete is skipped.
//
// On success the returned task carries the destination-assigned id, local
// state is updated atomically from the caller's view, and both affected
// cache entries are invalidated.
func (e *Engine) MoveTask(ctx context.Context, prog chan<- ProgressUpdate, taskID string, srcAccount models.Account, srcListID string, dstAccount models.Account, dstListID string) (models.Task, error) {
	srcStore, err := e.store(srcAccount)
	if err != nil {
		return models.Task{}, err
	}
	dstStore, err := e.store(dstAccount)
	if err != nil {
		return models.Task{}, err
	}

	e.mu.Lock()
	actualSrcList, i, ok := e.resolveTask(srcAccount, srcListID, taskID)
	if !ok {
		e.mu.Unlock()
		return models.Task{}, fmt.Errorf("%w: %s in %s", shared.ErrTaskNotFound, taskID, srcAccount)
	}
	original := e.tasks[listKey{Account: srcAccount, ListID: actualSrcList}][i].Clone()
	e.mu.Unlock()

	e.sendProgress(prog, resolveSourceUpdate(original, srcAccount, actualSrcList))
	e.sendProgress(prog, createDestUpdate(dstAccount, dstListID))

	draft := original.Clone()
	draft.ID = ""
	draft.Position = ""

	created, err := dstStore.CreateTask(ctx, dstListID, draft)
	if err != nil {
		// Nothing to compensate: the destination was never written.
		e.setLastError(err)
		return models.Task{}, fmt.Errorf("%w: destination create: %v", shared.ErrMoveFailed, err)
	}

	if !models.IsPlaceholderID(original.ID) {
		e.sendProgress(prog, deleteSourceUpdate(srcAccount, actualSrcList))

		if err := srcStore.DeleteTask(ctx, actualSrcList, original.ID); err != nil {
			e.sendProgress(prog, compensateUpdate(dstAccount, dstListID))
			e.logger.Error("source delete failed, compensating",
				"id", original.ID, "src", srcAccount, "dst", dstAccount, "err", err)

			if compErr := dstStore.DeleteTask(ctx, dstListID, created.ID); compErr != nil {
				joined := fmt.Errorf("%w: source delete: %v; compensation delete of %s: %v",
					shared.ErrCompensationFailed, err, created.ID, compErr)
				e.setLastError(joined)
				return models.Task{}, joined
			}

			e.setLastError(err)
			return models.Task{}, fmt.Errorf("%w: source delete: %v", shared.ErrMoveFailed, err)
		}
	}

	srcKey := listKey{Account: srcAccount, ListID: actualSrcList}
	dstKey := listKey{Account: dstAccount, ListID: dstListID}

	e.mu.Lock()
	if j, ok := e.findTask(srcAccount, actualSrcList, original.ID); ok {
		e.tasks[srcKey] = append(e.tasks[srcKey][:j], e.tasks[srcKey][j+1:]...)
	}
	e.tasks[dstKey] = append(e.tasks[dstKey], created.Clone())
	e.migrateVersion(original.ID, created.ID)
	e.bumpVersion(created.ID)
	if _, sel := e.selection[original.ID]; sel {
		delete(e.selection, original.ID)
		e.selection[created.ID] = struct{}{}
	}
	e.mu.Unlock()

	e.cache.InvalidateList(srcAccount, actualSrcList)
	e.cache.InvalidateList(dstAccount, dstListID)

	e.migrateWindow(original.ID, created.ID)

	return created, nil
}

// migrateWindow carries a task's time window across an id change. Best
// effort: a missing window is normal and storage failures only log.
func (e *Engine) migrateWindow(oldID, newID string) {
	if e.wins == nil || oldID == newID {
		return
	}

	w, err := e.wins.Get(oldID)
	if err != nil {
		if !errors.Is(err, shared.ErrWindowNotFound) {
			e.logger.Warn("failed to read time window", "id", oldID, "err", err)
		}
		return
	}

	if err := e.wins.Save(newID, *w); err != nil {
		e.logger.Warn("failed to migrate time window", "from", oldID, "to", newID, "err", err)
		return
	}
	if err := e.wins.Delete(oldID); err != nil {
		e.logger.Warn("failed to drop old time window", "id", oldID, "err", err)
	}
}
