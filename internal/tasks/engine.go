package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/taskmir/tmx/internal/cache"
	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/services"
	"github.com/taskmir/tmx/internal/shared"
)

// TimeWindowStore is the auxiliary metadata store consumed by the engine.
// Implemented by repositories.TimeWindowRepository.
type TimeWindowStore interface {
	Get(taskID string) (*models.TimeWindow, error)
	Save(taskID string, w models.TimeWindow) error
	Delete(taskID string) error
}

type listKey struct {
	Account models.Account
	ListID  string
}

// Engine owns the local mirror for all accounts: collections, cache,
// per-task version counters, the multi-select set, and the last-error status.
//
// All writes to the shared collections happen under one mutex, so concurrent
// readers always observe a consistent snapshot. Reads return deep copies.
// Remote reconciliation runs in background goroutines tracked by a WaitGroup;
// Wait blocks until every in-flight reconciliation has resolved.
type Engine struct {
	mu     sync.Mutex
	stores map[models.Account]services.RemoteStore
	cache  *cache.Cache
	wins   TimeWindowStore
	logger *log.Logger

	lists     map[models.Account][]models.TaskList
	tasks     map[listKey][]models.Task
	versions  map[string]uint64
	selection map[string]struct{}
	lastErr   string

	inflight sync.WaitGroup
}

// EngineOpts contains the dependencies for creating an Engine.
type EngineOpts struct {
	Stores  map[models.Account]services.RemoteStore
	Cache   *cache.Cache
	Windows TimeWindowStore
	Logger  *log.Logger
}

// NewEngine creates an engine instance scoped to the application session.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Cache == nil {
		opts.Cache = cache.New(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Engine{
		stores:    opts.Stores,
		cache:     opts.Cache,
		wins:      opts.Windows,
		logger:    opts.Logger,
		lists:     make(map[models.Account][]models.TaskList),
		tasks:     make(map[listKey][]models.Task),
		versions:  make(map[string]uint64),
		selection: make(map[string]struct{}),
	}
}

// Wait blocks until all background reconciliations have resolved.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) store(account models.Account) (services.RemoteStore, error) {
	store, ok := e.stores[account]
	if !ok || store == nil {
		return nil, fmt.Errorf("%w: no store for account %q", shared.ErrInvalidArgument, account)
	}
	return store, nil
}

// LoadLists returns the task lists for an account, from cache when fresh,
// otherwise fetched remotely. A successful load clears the last error.
func (e *Engine) LoadLists(ctx context.Context, account models.Account) ([]models.TaskList, error) {
	store, err := e.store(account)
	if err != nil {
		return nil, err
	}

	if lists, ok := e.cache.Lists(account); ok {
		e.setLists(account, lists)
		e.clearLastError()
		return lists, nil
	}

	lists, err := store.FetchLists(ctx)
	if err != nil {
		e.setLastError(err)
		return nil, err
	}

	e.setLists(account, lists)
	e.cache.PutLists(account, lists)
	e.clearLastError()
	return lists, nil
}

// LoadTasks returns the tasks in one list, from cache when fresh, otherwise
// fetched remotely. A successful load clears the last error.
func (e *Engine) LoadTasks(ctx context.Context, account models.Account, listID string) ([]models.Task, error) {
	store, err := e.store(account)
	if err != nil {
		return nil, err
	}

	if tasks, ok := e.cache.Tasks(account, listID); ok {
		e.setTasks(account, listID, tasks)
		e.clearLastError()
		return tasks, nil
	}

	tasks, err := store.FetchTasks(ctx, listID)
	if err != nil {
		e.setLastError(err)
		return nil, err
	}

	e.setTasks(account, listID, tasks)
	e.cache.PutTasks(account, listID, tasks)
	e.clearLastError()
	return tasks, nil
}

// RefreshAll fetches lists for every account and then tasks for every list,
// fanning out in parallel. Individual failures are joined; successful fetches
// still land in local state.
func (e *Engine) RefreshAll(ctx context.Context) error {
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errs []error

	collect := func(err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	for account := range e.stores {
		wg.Add(1)
		go func(account models.Account) {
			defer wg.Done()

			e.cache.InvalidateAccount(account)
			lists, err := e.LoadLists(ctx, account)
			if err != nil {
				collect(fmt.Errorf("%s: %w", account, err))
				return
			}

			var listWG sync.WaitGroup
			for _, list := range lists {
				listWG.Add(1)
				go func(listID string) {
					defer listWG.Done()
					if _, err := e.LoadTasks(ctx, account, listID); err != nil {
						collect(fmt.Errorf("%s/%s: %w", account, listID, err))
					}
				}(list.ID)
			}
			listWG.Wait()
		}(account)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// Lists returns a snapshot of the account's list collection.
func (e *Engine) Lists(account models.Account) []models.TaskList {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.TaskList, len(e.lists[account]))
	copy(out, e.lists[account])
	return out
}

// TasksIn returns a snapshot of the tasks in one list.
func (e *Engine) TasksIn(account models.Account, listID string) []models.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored := e.tasks[listKey{Account: account, ListID: listID}]
	out := make([]models.Task, len(stored))
	for i, t := range stored {
		out[i] = t.Clone()
	}
	return out
}

// ResolveList finds a list by title within an account (case-sensitive exact
// match against loaded state).
func (e *Engine) ResolveList(account models.Account, title string) (models.TaskList, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, list := range e.lists[account] {
		if list.Title == title {
			return list, nil
		}
	}
	return models.TaskList{}, fmt.Errorf("%w: %q in %s", shared.ErrListNotFound, title, account)
}

// LastError returns the most recent background failure message, or "".
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) setLastError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err.Error()
}

func (e *Engine) clearLastError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = ""
}

// Select adds task ids to the multi-select set.
func (e *Engine) Select(ids ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		e.selection[id] = struct{}{}
	}
}

// Deselect removes task ids from the multi-select set.
func (e *Engine) Deselect(ids ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		delete(e.selection, id)
	}
}

// Selected returns the current selection in sorted order.
func (e *Engine) Selected() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.selection))
	for id := range e.selection {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ClearSelection empties the multi-select set.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = make(map[string]struct{})
}

func (e *Engine) setLists(account models.Account, lists []models.TaskList) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored := make([]models.TaskList, len(lists))
	copy(stored, lists)
	e.lists[account] = stored
}

func (e *Engine) setTasks(account models.Account, listID string, tasks []models.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored := make([]models.Task, len(tasks))
	for i, t := range tasks {
		stored[i] = t.Clone()
	}
	e.tasks[listKey{Account: account, ListID: listID}] = stored
}

// findTask locates a task by id within one list. Caller must hold e.mu.
func (e *Engine) findTask(account models.Account, listID, taskID string) (int, bool) {
	for i, t := range e.tasks[listKey{Account: account, ListID: listID}] {
		if t.ID == taskID {
			return i, true
		}
	}
	return 0, false
}

// resolveTask locates the authoritative local copy of a task by id, checking
// the hinted list first and then every other list in the account. Caller
// must hold e.mu.
func (e *Engine) resolveTask(account models.Account, hintListID, taskID string) (string, int, bool) {
	if i, ok := e.findTask(account, hintListID, taskID); ok {
		return hintListID, i, true
	}
	for key := range e.tasks {
		if key.Account != account || key.ListID == hintListID {
			continue
		}
		if i, ok := e.findTask(account, key.ListID, taskID); ok {
			return key.ListID, i, true
		}
	}
	return "", 0, false
}

// bumpVersion increments and returns a task's mutation counter. Caller must
// hold e.mu.
func (e *Engine) bumpVersion(taskID string) uint64 {
	e.versions[taskID]++
	return e.versions[taskID]
}

// migrateVersion carries a task's counter across an id change (placeholder
// swap, move). Caller must hold e.mu.
func (e *Engine) migrateVersion(oldID, newID string) {
	if v, ok := e.versions[oldID]; ok {
		e.versions[newID] = v
		delete(e.versions, oldID)
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
