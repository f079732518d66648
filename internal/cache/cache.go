// Package cache provides TTL-guarded storage for fetched task lists and
// tasks, keyed per account and per (account, list).
//
// An entry older than its TTL is indistinguishable from an absent entry:
// expired reads report a miss and evict. Callers that mutate a list's task
// set must invalidate its entry before dispatching the remote call so a
// concurrent read cannot observe stale data as fresh.
package cache

import (
	"sync"
	"time"

	"github.com/taskmir/tmx/internal/models"
)

// Default entry lifetimes. Lists change far less often than tasks.
const (
	DefaultTaskTTL = 30 * time.Minute
	DefaultListTTL = 60 * time.Minute
)

// Entry is a cached value with its fetch timestamp.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Valid reports whether the entry is younger than ttl at the given instant.
func (e Entry[T]) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

type taskKey struct {
	Account models.Account
	ListID  string
}

// Cache stores per-account list collections and per-(account, list) task
// collections. All values are deep-copied on the way in and out.
type Cache struct {
	mu      sync.Mutex
	now     func() time.Time
	taskTTL time.Duration
	listTTL time.Duration
	tasks   map[taskKey]Entry[[]models.Task]
	lists   map[models.Account]Entry[[]models.TaskList]
}

// New creates a cache with the given TTLs. Non-positive values fall back to
// the defaults.
func New(taskTTL, listTTL time.Duration) *Cache {
	if taskTTL <= 0 {
		taskTTL = DefaultTaskTTL
	}
	if listTTL <= 0 {
		listTTL = DefaultListTTL
	}
	return &Cache{
		now:     time.Now,
		taskTTL: taskTTL,
		listTTL: listTTL,
		tasks:   make(map[taskKey]Entry[[]models.Task]),
		lists:   make(map[models.Account]Entry[[]models.TaskList]),
	}
}

// SetClock replaces the time source. Tests use this to step across TTL
// boundaries deterministically.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Tasks returns the cached tasks for (account, listID), or a miss if the
// entry is absent or expired.
func (c *Cache) Tasks(account models.Account, listID string) ([]models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := taskKey{Account: account, ListID: listID}
	entry, ok := c.tasks[key]
	if !ok {
		return nil, false
	}
	if !entry.Valid(c.now(), c.taskTTL) {
		delete(c.tasks, key)
		return nil, false
	}
	return cloneTasks(entry.Value), true
}

// PutTasks stores tasks for (account, listID), stamped with the current time.
func (c *Cache) PutTasks(account models.Account, listID string, tasks []models.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := taskKey{Account: account, ListID: listID}
	c.tasks[key] = Entry[[]models.Task]{Value: cloneTasks(tasks), FetchedAt: c.now()}
}

// Lists returns the cached task lists for an account, or a miss if absent or
// expired.
func (c *Cache) Lists(account models.Account) ([]models.TaskList, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lists[account]
	if !ok {
		return nil, false
	}
	if !entry.Valid(c.now(), c.listTTL) {
		delete(c.lists, account)
		return nil, false
	}
	out := make([]models.TaskList, len(entry.Value))
	copy(out, entry.Value)
	return out, true
}

// PutLists stores the list collection for an account.
func (c *Cache) PutLists(account models.Account, lists []models.TaskList) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]models.TaskList, len(lists))
	copy(stored, lists)
	c.lists[account] = Entry[[]models.TaskList]{Value: stored, FetchedAt: c.now()}
}

// InvalidateList drops the task entry for one (account, listID).
func (c *Cache) InvalidateList(account models.Account, listID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, taskKey{Account: account, ListID: listID})
}

// InvalidateAccount drops the account's list entry and every task entry
// belonging to it.
func (c *Cache) InvalidateAccount(account models.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.lists, account)
	for key := range c.tasks {
		if key.Account == account {
			delete(c.tasks, key)
		}
	}
}

func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
