package tasks

import (
	"context"
	"fmt"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/shared"
)

// List operations go straight to the remote store: they are low-volume and
// low-risk, so they skip the optimistic path entirely. Local state and the
// account's cache are updated only after the remote call succeeds.

// CreateList creates a task list in one account.
func (e *Engine) CreateList(ctx context.Context, account models.Account, title string) (models.TaskList, error) {
	store, err := e.store(account)
	if err != nil {
		return models.TaskList{}, err
	}

	created, err := store.CreateList(ctx, title)
	if err != nil {
		e.setLastError(err)
		return models.TaskList{}, err
	}

	e.mu.Lock()
	e.lists[account] = append(e.lists[account], created)
	e.mu.Unlock()

	e.cache.InvalidateAccount(account)
	return created, nil
}

// RenameList changes a list's title in one account.
func (e *Engine) RenameList(ctx context.Context, account models.Account, listID, title string) error {
	store, err := e.store(account)
	if err != nil {
		return err
	}

	if err := store.RenameList(ctx, listID, title); err != nil {
		e.setLastError(err)
		return err
	}

	e.mu.Lock()
	for i, list := range e.lists[account] {
		if list.ID == listID {
			e.lists[account][i].Title = title
			break
		}
	}
	e.mu.Unlock()

	e.cache.InvalidateAccount(account)
	return nil
}

// DeleteList removes a list and its local tasks from one account.
func (e *Engine) DeleteList(ctx context.Context, account models.Account, listID string) error {
	store, err := e.store(account)
	if err != nil {
		return err
	}

	if err := store.DeleteList(ctx, listID); err != nil {
		e.setLastError(err)
		return err
	}

	e.mu.Lock()
	lists := e.lists[account]
	found := false
	for i, list := range lists {
		if list.ID == listID {
			e.lists[account] = append(lists[:i], lists[i+1:]...)
			found = true
			break
		}
	}
	delete(e.tasks, listKey{Account: account, ListID: listID})
	e.mu.Unlock()

	e.cache.InvalidateAccount(account)

	if !found {
		e.logger.Debug("deleted list was not in local state", "account", account, "list", listID)
	}
	return nil
}

// ListTitle returns the title of a loaded list, for display.
func (e *Engine) ListTitle(account models.Account, listID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, list := range e.lists[account] {
		if list.ID == listID {
			return list.Title, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", shared.ErrListNotFound, listID, account)
}
