// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/services"
	"github.com/taskmir/tmx/internal/shared"
)

// FakeStore is an in-memory test double for [services.RemoteStore] with
// per-call error injection.
type FakeStore struct {
	mu     sync.Mutex
	name   string
	lists  []models.TaskList
	tasks  map[string][]models.Task
	nextID int

	FailFetchLists error
	FailFetchTasks error
	FailCreateTask error
	FailUpdateTask error
	FailDeleteTask error
	FailCreateList error
	FailRenameList error
	FailDeleteList error

	FetchTaskCalls  int
	CreateTaskCalls int
	UpdateTaskCalls int
	DeleteTaskCalls int
	DeletedTaskIDs  []string
}

// NewFakeStore creates an empty fake store labeled name.
func NewFakeStore(name string) *FakeStore {
	return &FakeStore{name: name, tasks: make(map[string][]models.Task)}
}

// SeedList installs a list and its tasks.
func (f *FakeStore) SeedList(list models.TaskList, tasks []models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, list)
	f.tasks[list.ID] = append([]models.Task{}, tasks...)
}

// TasksIn returns the store's current tasks for a list.
func (f *FakeStore) TasksIn(listID string) []models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Task{}, f.tasks[listID]...)
}

func (f *FakeStore) Name() string { return f.name }

func (f *FakeStore) FetchLists(ctx context.Context) ([]models.TaskList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailFetchLists != nil {
		return nil, f.FailFetchLists
	}
	return append([]models.TaskList{}, f.lists...), nil
}

func (f *FakeStore) FetchTasks(ctx context.Context, listID string) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchTaskCalls++
	if f.FailFetchTasks != nil {
		return nil, f.FailFetchTasks
	}
	if _, ok := f.tasks[listID]; !ok {
		return nil, &shared.APIError{Code: 404, Message: "list not found"}
	}
	return append([]models.Task{}, f.tasks[listID]...), nil
}

func (f *FakeStore) CreateTask(ctx context.Context, listID string, task models.Task) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateTaskCalls++
	if f.FailCreateTask != nil {
		return models.Task{}, f.FailCreateTask
	}
	if _, ok := f.tasks[listID]; !ok {
		return models.Task{}, &shared.APIError{Code: 404, Message: "list not found"}
	}
	f.nextID++
	created := task.Clone()
	created.ID = fmt.Sprintf("%s-task-%d", f.name, f.nextID)
	if created.Status == "" {
		created.Status = models.StatusPending
	}
	f.tasks[listID] = append(f.tasks[listID], created)
	return created.Clone(), nil
}

func (f *FakeStore) UpdateTask(ctx context.Context, listID string, patch services.TaskPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateTaskCalls++
	if f.FailUpdateTask != nil {
		return f.FailUpdateTask
	}
	tasks, ok := f.tasks[listID]
	if !ok {
		return &shared.APIError{Code: 404, Message: "list not found"}
	}
	for i, t := range tasks {
		if t.ID != patch.ID {
			continue
		}
		if v, ok := patch.Title.Value(); ok {
			t.Title = v
		}
		if v, ok := patch.Notes.Value(); ok {
			t.Notes = v
		} else if patch.Notes.Cleared() {
			t.Notes = ""
		}
		if v, ok := patch.Due.Value(); ok {
			t.Due = v
		} else if patch.Due.Cleared() {
			t.Due = ""
		}
		if v, ok := patch.Status.Value(); ok {
			t.Status = v
		}
		if v, ok := patch.CompletedAt.Value(); ok {
			utc := v.UTC()
			t.CompletedAt = &utc
		} else if patch.CompletedAt.Cleared() {
			t.CompletedAt = nil
		}
		tasks[i] = t
		return nil
	}
	return &shared.APIError{Code: 404, Message: "task not found"}
}

func (f *FakeStore) DeleteTask(ctx context.Context, listID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteTaskCalls++
	if f.FailDeleteTask != nil {
		return f.FailDeleteTask
	}
	tasks, ok := f.tasks[listID]
	if !ok {
		return &shared.APIError{Code: 404, Message: "list not found"}
	}
	for i, t := range tasks {
		if t.ID == taskID {
			f.tasks[listID] = append(tasks[:i], tasks[i+1:]...)
			f.DeletedTaskIDs = append(f.DeletedTaskIDs, taskID)
			return nil
		}
	}
	return &shared.APIError{Code: 404, Message: "task not found"}
}

func (f *FakeStore) CreateList(ctx context.Context, title string) (models.TaskList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateList != nil {
		return models.TaskList{}, f.FailCreateList
	}
	f.nextID++
	list := models.TaskList{ID: fmt.Sprintf("%s-list-%d", f.name, f.nextID), Title: title}
	f.lists = append(f.lists, list)
	f.tasks[list.ID] = nil
	return list, nil
}

func (f *FakeStore) RenameList(ctx context.Context, listID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRenameList != nil {
		return f.FailRenameList
	}
	for i, l := range f.lists {
		if l.ID == listID {
			f.lists[i].Title = title
			return nil
		}
	}
	return &shared.APIError{Code: 404, Message: "list not found"}
}

func (f *FakeStore) DeleteList(ctx context.Context, listID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDeleteList != nil {
		return f.FailDeleteList
	}
	for i, l := range f.lists {
		if l.ID == listID {
			f.lists = append(f.lists[:i], f.lists[i+1:]...)
			delete(f.tasks, listID)
			return nil
		}
	}
	return &shared.APIError{Code: 404, Message: "list not found"}
}

// FakeWindowStore is an in-memory test double for the time window store.
type FakeWindowStore struct {
	mu      sync.Mutex
	windows map[string]models.TimeWindow

	FailGet    error
	FailSave   error
	FailDelete error
}

func NewFakeWindowStore() *FakeWindowStore {
	return &FakeWindowStore{windows: make(map[string]models.TimeWindow)}
}

func (f *FakeWindowStore) Get(taskID string) (*models.TimeWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailGet != nil {
		return nil, f.FailGet
	}
	w, ok := f.windows[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrWindowNotFound, taskID)
	}
	return &w, nil
}

func (f *FakeWindowStore) Save(taskID string, w models.TimeWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSave != nil {
		return f.FailSave
	}
	f.windows[taskID] = w
	return nil
}

func (f *FakeWindowStore) Delete(taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete != nil {
		return f.FailDelete
	}
	delete(f.windows, taskID)
	return nil
}

// Len returns the number of stored windows.
func (f *FakeWindowStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

// Has reports whether a window exists for taskID.
func (f *FakeWindowStore) Has(taskID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.windows[taskID]
	return ok
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}
