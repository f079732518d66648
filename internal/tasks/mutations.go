package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/services"
	"github.com/taskmir/tmx/internal/shared"
)

// taskSnapshot captures a task's state strictly before an optimistic apply.
// applied is the version counter produced by that apply: rollback only
// proceeds while the counter still matches, so a slow failure cannot roll
// back over a newer optimistic state.
type taskSnapshot struct {
	account models.Account
	listID  string
	index   int
	task    models.Task
	applied uint64
}

// CreateTask inserts a task with a placeholder id synchronously, invalidates
// the list's cache entry, and dispatches the remote create in the background.
// On remote success the placeholder is swapped for the server-assigned task;
// on failure the placeholder is removed and the last error updated.
func (e *Engine) CreateTask(ctx context.Context, account models.Account, listID, title, notes, due string) (models.Task, error) {
	store, err := e.store(account)
	if err != nil {
		return models.Task{}, err
	}

	task := models.Task{
		ID:     models.NewPlaceholderID(),
		Title:  title,
		Notes:  notes,
		Status: models.StatusPending,
		Due:    due,
	}
	if err := task.Validate(); err != nil {
		return models.Task{}, err
	}

	key := listKey{Account: account, ListID: listID}
	e.mu.Lock()
	e.tasks[key] = append(e.tasks[key], task.Clone())
	applied := e.bumpVersion(task.ID)
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)

	bg := context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.reconcileCreate(bg, store, account, listID, task, applied)
	}()

	return task, nil
}

func (e *Engine) reconcileCreate(ctx context.Context, store services.RemoteStore, account models.Account, listID string, placeholder models.Task, applied uint64) {
	logger := shared.WithLogger(e.logger, "account", account, "list", listID)

	created, err := store.CreateTask(ctx, listID, placeholder)
	if err != nil {
		logger.Error("create failed, removing placeholder", "title", placeholder.Title, "err", err)
		e.dropPlaceholder(account, listID, placeholder.ID, err)
		return
	}

	key := listKey{Account: account, ListID: listID}
	e.mu.Lock()
	var followUp services.TaskPatch
	if i, ok := e.findTask(account, listID, placeholder.ID); ok {
		swap := created.Clone()
		if e.versions[placeholder.ID] != applied {
			// The placeholder was edited while the create was in flight, so
			// the server copy carries stale fields. The local state wins the
			// swap and the delta goes back out under the server id.
			local := e.tasks[key][i].Clone()
			local.ID = created.ID
			local.Updated = created.Updated
			local.Position = created.Position
			followUp = diffPatch(created, local)
			swap = local
			logger.Info("carrying local edits across placeholder swap", "id", created.ID)
		}
		e.tasks[key][i] = swap
		e.migrateVersion(placeholder.ID, created.ID)
		if _, sel := e.selection[placeholder.ID]; sel {
			delete(e.selection, placeholder.ID)
			e.selection[created.ID] = struct{}{}
		}
	} else {
		// Placeholder vanished while the create was in flight (deleted or
		// moved); the remote copy is authoritative, so reinsert it.
		logger.Warn("placeholder gone after create, inserting server copy", "id", created.ID)
		e.tasks[key] = append(e.tasks[key], created.Clone())
	}
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)

	if !patchEmpty(followUp) {
		if err := store.UpdateTask(ctx, listID, followUp); err != nil {
			logger.Error("failed to push local edits after swap", "id", created.ID, "err", err)
			e.setLastError(err)
		}
	}
}

// UpdateTask replaces a task's local state synchronously and dispatches a
// partial remote update for the fields that changed. A remote failure
// restores the pre-update snapshot.
func (e *Engine) UpdateTask(ctx context.Context, account models.Account, listID string, updated models.Task) error {
	store, err := e.store(account)
	if err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}

	key := listKey{Account: account, ListID: listID}
	e.mu.Lock()
	i, ok := e.findTask(account, listID, updated.ID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s in %s/%s", shared.ErrTaskNotFound, updated.ID, account, listID)
	}
	snap := taskSnapshot{account: account, listID: listID, index: i, task: e.tasks[key][i].Clone()}
	e.tasks[key][i] = updated.Clone()
	snap.applied = e.bumpVersion(updated.ID)
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)

	if models.IsPlaceholderID(updated.ID) {
		// Nothing exists remotely yet. The version bump above makes the
		// placeholder swap keep this state and push the delta out under the
		// server id once the create lands.
		e.logger.Debug("update on unsynced placeholder kept local", "id", updated.ID)
		return nil
	}

	patch := diffPatch(snap.task, updated)
	bg := context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if err := store.UpdateTask(bg, listID, patch); err != nil {
			e.logger.Error("update failed, rolling back",
				"account", account, "list", listID, "id", updated.ID, "err", err)
			e.rollbackReplace(snap, err)
		}
	}()

	return nil
}

// ToggleCompletion flips a task's completion state synchronously and
// reconciles in the background. Completing stamps a UTC timestamp; reopening
// clears it.
func (e *Engine) ToggleCompletion(ctx context.Context, account models.Account, listID, taskID string) (models.Task, error) {
	store, err := e.store(account)
	if err != nil {
		return models.Task{}, err
	}

	key := listKey{Account: account, ListID: listID}
	e.mu.Lock()
	i, ok := e.findTask(account, listID, taskID)
	if !ok {
		e.mu.Unlock()
		return models.Task{}, fmt.Errorf("%w: %s in %s/%s", shared.ErrTaskNotFound, taskID, account, listID)
	}
	snap := taskSnapshot{account: account, listID: listID, index: i, task: e.tasks[key][i].Clone()}

	toggled := snap.task.Clone()
	if toggled.Completed() {
		toggled.Status = models.StatusPending
		toggled.CompletedAt = nil
	} else {
		now := time.Now().UTC()
		toggled.Status = models.StatusCompleted
		toggled.CompletedAt = &now
	}
	e.tasks[key][i] = toggled.Clone()
	snap.applied = e.bumpVersion(taskID)
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)

	if models.IsPlaceholderID(taskID) {
		e.logger.Debug("toggle on unsynced placeholder kept local", "id", taskID)
		return toggled, nil
	}

	patch := togglePatch(toggled)
	bg := context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if err := store.UpdateTask(bg, listID, patch); err != nil {
			e.logger.Error("toggle failed, rolling back",
				"account", account, "list", listID, "id", taskID, "err", err)
			e.rollbackReplace(snap, err)
		}
	}()

	return toggled, nil
}

// DeleteTask removes a task synchronously and dispatches the remote delete.
// A remote failure reinserts the snapshot at its original position.
func (e *Engine) DeleteTask(ctx context.Context, account models.Account, listID, taskID string) error {
	store, err := e.store(account)
	if err != nil {
		return err
	}

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
		// Never synced, nothing to delete remotely.
		return nil
	}

	bg := context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if err := store.DeleteTask(bg, listID, taskID); err != nil {
			e.logger.Error("delete failed, restoring task",
				"account", account, "list", listID, "id", taskID, "err", err)
			e.rollbackInsert(snap, err)
			return
		}
		if e.wins != nil {
			if err := e.wins.Delete(taskID); err != nil {
				e.logger.Warn("failed to drop time window", "id", taskID, "err", err)
			}
		}
	}()

	return nil
}

// rollbackReplace restores the snapshot in place unless a newer optimistic
// apply has occurred since; a stale rollback is skipped and reported as a
// conflict instead of silently clobbering newer state.
func (e *Engine) rollbackReplace(snap taskSnapshot, cause error) {
	key := listKey{Account: snap.account, ListID: snap.listID}

	e.mu.Lock()
	if e.versions[snap.task.ID] != snap.applied {
		e.lastErr = fmt.Sprintf("%v: %s", shared.ErrStaleRollback, snap.task.ID)
		e.mu.Unlock()
		e.logger.Warn("stale rollback skipped", "id", snap.task.ID)
		return
	}
	if i, ok := e.findTask(snap.account, snap.listID, snap.task.ID); ok {
		e.tasks[key][i] = snap.task.Clone()
		e.bumpVersion(snap.task.ID)
	}
	e.lastErr = cause.Error()
	e.mu.Unlock()

	e.cache.InvalidateList(snap.account, snap.listID)
}

// rollbackInsert restores a deleted task at its original position.
func (e *Engine) rollbackInsert(snap taskSnapshot, cause error) {
	key := listKey{Account: snap.account, ListID: snap.listID}

	e.mu.Lock()
	if e.versions[snap.task.ID] != snap.applied {
		e.lastErr = fmt.Sprintf("%v: %s", shared.ErrStaleRollback, snap.task.ID)
		e.mu.Unlock()
		e.logger.Warn("stale rollback skipped", "id", snap.task.ID)
		return
	}
	tasks := e.tasks[key]
	i := snap.index
	if i > len(tasks) {
		i = len(tasks)
	}
	tasks = append(tasks[:i], append([]models.Task{snap.task.Clone()}, tasks[i:]...)...)
	e.tasks[key] = tasks
	e.bumpVersion(snap.task.ID)
	e.lastErr = cause.Error()
	e.mu.Unlock()

	e.cache.InvalidateList(snap.account, snap.listID)
}

// dropPlaceholder removes a placeholder whose remote create failed. The task
// never existed remotely, so removal is unconditional.
func (e *Engine) dropPlaceholder(account models.Account, listID, localID string, cause error) {
	key := listKey{Account: account, ListID: listID}

	e.mu.Lock()
	if i, ok := e.findTask(account, listID, localID); ok {
		e.tasks[key] = append(e.tasks[key][:i], e.tasks[key][i+1:]...)
	}
	delete(e.versions, localID)
	delete(e.selection, localID)
	e.lastErr = cause.Error()
	e.mu.Unlock()

	e.cache.InvalidateList(account, listID)
}

// diffPatch builds a three-state partial update from the fields that differ
// between the snapshot and the new state. Emptied optional fields become
// explicit clears, never omissions.
func diffPatch(before, after models.Task) services.TaskPatch {
	patch := services.TaskPatch{ID: after.ID}

	if after.Title != before.Title {
		patch.Title = services.SetField(after.Title)
	}
	if after.Notes != before.Notes {
		if after.Notes == "" {
			patch.Notes = services.ClearField[string]()
		} else {
			patch.Notes = services.SetField(after.Notes)
		}
	}
	if after.Due != before.Due {
		if after.Due == "" {
			patch.Due = services.ClearField[string]()
		} else {
			patch.Due = services.SetField(after.Due)
		}
	}
	if after.Status != before.Status {
		patch.Status = services.SetField(after.Status)
		if after.CompletedAt != nil {
			patch.CompletedAt = services.SetField(*after.CompletedAt)
		} else {
			patch.CompletedAt = services.ClearField[time.Time]()
		}
	}

	return patch
}

// patchEmpty reports whether a patch carries no field changes at all.
func patchEmpty(patch services.TaskPatch) bool {
	return patch.Title.Unchanged() && patch.Notes.Unchanged() && patch.Due.Unchanged() &&
		patch.Status.Unchanged() && patch.CompletedAt.Unchanged()
}

// togglePatch builds the status/completed patch for a toggled task.
func togglePatch(toggled models.Task) services.TaskPatch {
	patch := services.TaskPatch{ID: toggled.ID}
	patch.Status = services.SetField(toggled.Status)
	if toggled.CompletedAt != nil {
		patch.CompletedAt = services.SetField(*toggled.CompletedAt)
	} else {
		patch.CompletedAt = services.ClearField[time.Time]()
	}
	return patch
}
