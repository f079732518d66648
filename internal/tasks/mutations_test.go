package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/services"
	"github.com/taskmir/tmx/internal/shared"
	tu "github.com/taskmir/tmx/internal/testing"
)

func TestCreateTaskSwapsPlaceholder(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)
	ctx := context.Background()

	task, err := engine.CreateTask(ctx, models.AccountPersonal, "p-inbox", "Call dentist", "ask about friday", "2025-07-01")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if !models.IsPlaceholderID(task.ID) {
		t.Errorf("CreateTask() returned id %q, want placeholder", task.ID)
	}

	// The task is visible immediately, before the remote create lands.
	if got := engine.TasksIn(models.AccountPersonal, "p-inbox"); len(got) != 4 {
		t.Fatalf("Expected 4 tasks after optimistic insert, got %d", len(got))
	}

	engine.Wait()

	tasks := engine.TasksIn(models.AccountPersonal, "p-inbox")
	if len(tasks) != 4 {
		t.Fatalf("Expected 4 tasks after reconciliation, got %d", len(tasks))
	}
	last := tasks[len(tasks)-1]
	if models.IsPlaceholderID(last.ID) {
		t.Errorf("Placeholder %q was not swapped for the server id", last.ID)
	}
	if !strings.HasPrefix(last.ID, "personal-task-") {
		t.Errorf("Unexpected server id %q", last.ID)
	}
	if personal.CreateTaskCalls != 1 {
		t.Errorf("CreateTaskCalls = %d, want 1", personal.CreateTaskCalls)
	}
	if engine.LastError() != "" {
		t.Errorf("LastError = %q, want empty", engine.LastError())
	}
}

func TestCreateTaskFailureDropsPlaceholder(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)
	ctx := context.Background()

	personal.FailCreateTask = errors.New("quota exceeded")

	if _, err := engine.CreateTask(ctx, models.AccountPersonal, "p-inbox", "Doomed", "", ""); err != nil {
		t.Fatalf("CreateTask() error = %v, optimistic insert must not fail", err)
	}
	engine.Wait()

	for _, task := range engine.TasksIn(models.AccountPersonal, "p-inbox") {
		if task.Title == "Doomed" {
			t.Error("Placeholder survived a failed remote create")
		}
	}
	if engine.LastError() == "" {
		t.Error("LastError not set after failed create")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)

	_, err := engine.CreateTask(context.Background(), models.AccountPersonal, "p-inbox", "  ", "", "")
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("CreateTask() error = %v, want ErrInvalidInput", err)
	}

	engine.Wait()
	if personal.CreateTaskCalls != 0 {
		t.Errorf("CreateTaskCalls = %d, want 0 for invalid input", personal.CreateTaskCalls)
	}
}

func TestUpdateTask(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)
	ctx := context.Background()

	updated := models.Task{ID: "p-1", Title: "Buy oat milk", Status: models.StatusPending}
	if err := engine.UpdateTask(ctx, models.AccountPersonal, "p-inbox", updated); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	engine.Wait()

	if got := engine.TasksIn(models.AccountPersonal, "p-inbox")[0].Title; got != "Buy oat milk" {
		t.Errorf("Local title = %q, want updated value", got)
	}
	remote := personal.TasksIn("p-inbox")
	if remote[0].Title != "Buy oat milk" {
		t.Errorf("Remote title = %q, patch did not land", remote[0].Title)
	}
	if personal.UpdateTaskCalls != 1 {
		t.Errorf("UpdateTaskCalls = %d, want 1", personal.UpdateTaskCalls)
	}
}

func TestUpdateTaskRollback(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)
	ctx := context.Background()

	personal.FailUpdateTask = errors.New("precondition failed")

	updated := models.Task{ID: "p-1", Title: "Buy oat milk", Status: models.StatusPending}
	if err := engine.UpdateTask(ctx, models.AccountPersonal, "p-inbox", updated); err != nil {
		t.Fatalf("UpdateTask() error = %v, optimistic apply must not fail", err)
	}
	engine.Wait()

	if got := engine.TasksIn(models.AccountPersonal, "p-inbox")[0].Title; got != "Buy milk" {
		t.Errorf("Local title = %q, want original restored", got)
	}
	if engine.LastError() == "" {
		t.Error("LastError not set after rollback")
	}
}

func TestUpdateUnknownTask(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	loadAll(t, engine)

	err := engine.UpdateTask(context.Background(), models.AccountPersonal, "p-inbox",
		models.Task{ID: "ghost", Title: "x", Status: models.StatusPending})
	if !errors.Is(err, shared.ErrTaskNotFound) {
		t.Errorf("UpdateTask() error = %v, want ErrTaskNotFound", err)
	}
}

func TestUpdatePlaceholderStaysLocal(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)

	placeholder := models.Task{ID: models.NewPlaceholderID(), Title: "Unsynced", Status: models.StatusPending}
	engine.setTasks(models.AccountPersonal, "p-inbox", []models.Task{placeholder})

	edited := placeholder.Clone()
	edited.Title = "Unsynced v2"
	if err := engine.UpdateTask(context.Background(), models.AccountPersonal, "p-inbox", edited); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	engine.Wait()

	if personal.UpdateTaskCalls != 0 {
		t.Errorf("UpdateTaskCalls = %d, want 0 for placeholder", personal.UpdateTaskCalls)
	}
	if got := engine.TasksIn(models.AccountPersonal, "p-inbox")[0].Title; got != "Unsynced v2" {
		t.Errorf("Local title = %q, want local edit kept", got)
	}
}

func TestToggleCompletion(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)
	ctx := context.Background()

	toggled, err := engine.ToggleCompletion(ctx, models.AccountPersonal, "p-inbox", "p-1")
	if err != nil {
		t.Fatalf("ToggleCompletion() error = %v", err)
	}
	if !toggled.Completed() {
		t.Error("Expected task completed after first toggle")
	}
	if toggled.CompletedAt == nil {
		t.Fatal("CompletedAt not stamped")
	}
	engine.Wait()

	reopened, err := engine.ToggleCompletion(ctx, models.AccountPersonal, "p-inbox", "p-1")
	if err != nil {
		t.Fatalf("ToggleCompletion() error = %v", err)
	}
	if reopened.Completed() {
		t.Error("Expected task pending after second toggle")
	}
	if reopened.CompletedAt != nil {
		t.Error("CompletedAt not cleared on reopen")
	}
	engine.Wait()

	if personal.UpdateTaskCalls != 2 {
		t.Errorf("UpdateTaskCalls = %d, want 2", personal.UpdateTaskCalls)
	}
}

func TestToggleCompletionRollback(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)

	personal.FailUpdateTask = errors.New("server error")

	if _, err := engine.ToggleCompletion(context.Background(), models.AccountPersonal, "p-inbox", "p-1"); err != nil {
		t.Fatalf("ToggleCompletion() error = %v", err)
	}
	engine.Wait()

	got := engine.TasksIn(models.AccountPersonal, "p-inbox")[0]
	if got.Completed() {
		t.Error("Completion survived a failed remote update")
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt survived rollback")
	}
}

func TestDeleteTask(t *testing.T) {
	engine, personal, _, wins := newTestEngine(t)
	loadAll(t, engine)

	wins.Save("p-1", models.TimeWindow{AllDay: true})

	if err := engine.DeleteTask(context.Background(), models.AccountPersonal, "p-inbox", "p-1"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	engine.Wait()

	if got := engine.TasksIn(models.AccountPersonal, "p-inbox"); len(got) != 2 {
		t.Errorf("Expected 2 tasks after delete, got %d", len(got))
	}
	if len(personal.DeletedTaskIDs) != 1 || personal.DeletedTaskIDs[0] != "p-1" {
		t.Errorf("DeletedTaskIDs = %v, want [p-1]", personal.DeletedTaskIDs)
	}
	if wins.Has("p-1") {
		t.Error("Time window not dropped with its task")
	}
}

func TestDeleteTaskRollback(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)

	personal.FailDeleteTask = errors.New("server error")

	if err := engine.DeleteTask(context.Background(), models.AccountPersonal, "p-inbox", "p-1"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	engine.Wait()

	tasks := engine.TasksIn(models.AccountPersonal, "p-inbox")
	if len(tasks) != 3 {
		t.Fatalf("Expected 3 tasks after rollback, got %d", len(tasks))
	}
	if tasks[0].ID != "p-1" {
		t.Errorf("Restored task at index 0 = %q, want original position", tasks[0].ID)
	}
	if engine.LastError() == "" {
		t.Error("LastError not set after rollback")
	}
}

func TestDeletePlaceholderSkipsRemote(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)

	placeholder := models.Task{ID: models.NewPlaceholderID(), Title: "Unsynced", Status: models.StatusPending}
	engine.setTasks(models.AccountPersonal, "p-inbox", []models.Task{placeholder})

	if err := engine.DeleteTask(context.Background(), models.AccountPersonal, "p-inbox", placeholder.ID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	engine.Wait()

	if personal.DeleteTaskCalls != 0 {
		t.Errorf("DeleteTaskCalls = %d, want 0 for placeholder", personal.DeleteTaskCalls)
	}
}

// gatedStore holds the remote create open until release is closed, so a test
// can interleave other mutations with an in-flight create.
type gatedStore struct {
	*tu.FakeStore
	release chan struct{}
}

func (s *gatedStore) CreateTask(ctx context.Context, listID string, task models.Task) (models.Task, error) {
	<-s.release
	return s.FakeStore.CreateTask(ctx, listID, task)
}

func TestEditDuringCreateSurvivesSwap(t *testing.T) {
	personal := tu.NewFakeStore("personal")
	personal.SeedList(models.TaskList{ID: "p-inbox", Title: "Inbox"}, nil)
	gated := &gatedStore{FakeStore: personal, release: make(chan struct{})}

	engine := NewEngine(EngineOpts{
		Stores: map[models.Account]services.RemoteStore{models.AccountPersonal: gated},
	})
	ctx := context.Background()
	if _, err := engine.LoadTasks(ctx, models.AccountPersonal, "p-inbox"); err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}

	task, err := engine.CreateTask(ctx, models.AccountPersonal, "p-inbox", "Draft notes", "", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	// Edit the placeholder while the remote create is still blocked.
	edited := task.Clone()
	edited.Title = "Draft notes v2"
	if err := engine.UpdateTask(ctx, models.AccountPersonal, "p-inbox", edited); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}

	close(gated.release)
	engine.Wait()

	tasks := engine.TasksIn(models.AccountPersonal, "p-inbox")
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task after reconciliation, got %d", len(tasks))
	}
	if models.IsPlaceholderID(tasks[0].ID) {
		t.Errorf("Placeholder %q was not swapped for the server id", tasks[0].ID)
	}
	if tasks[0].Title != "Draft notes v2" {
		t.Errorf("Title = %q, in-flight edit lost in the placeholder swap", tasks[0].Title)
	}
	if engine.LastError() != "" {
		t.Errorf("LastError = %q, want empty", engine.LastError())
	}

	// The edit must also converge remotely, under the server id.
	remote := personal.TasksIn("p-inbox")
	if len(remote) != 1 || remote[0].Title != "Draft notes v2" {
		t.Errorf("Remote tasks = %+v, want the edited title pushed after the swap", remote)
	}
	if personal.UpdateTaskCalls != 1 {
		t.Errorf("UpdateTaskCalls = %d, want 1 follow-up patch", personal.UpdateTaskCalls)
	}
}

func TestStaleRollbackSkipped(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)
	ctx := context.Background()

	personal.FailUpdateTask = errors.New("slow failure")

	first := models.Task{ID: "p-1", Title: "First edit", Status: models.StatusPending}
	if err := engine.UpdateTask(ctx, models.AccountPersonal, "p-inbox", first); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	engine.Wait()

	// Rolled back to "Buy milk". Apply a second edit that succeeds, then
	// replay the stale snapshot rollback directly: it must be skipped.
	personal.FailUpdateTask = nil
	second := models.Task{ID: "p-1", Title: "Second edit", Status: models.StatusPending}
	if err := engine.UpdateTask(ctx, models.AccountPersonal, "p-inbox", second); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	engine.Wait()

	stale := taskSnapshot{
		account: models.AccountPersonal,
		listID:  "p-inbox",
		index:   0,
		task:    models.Task{ID: "p-1", Title: "Buy milk", Status: models.StatusPending},
		applied: 1,
	}
	engine.rollbackReplace(stale, errors.New("late failure"))

	if got := engine.TasksIn(models.AccountPersonal, "p-inbox")[0].Title; got != "Second edit" {
		t.Errorf("Title = %q, stale rollback clobbered newer state", got)
	}
	if !strings.Contains(engine.LastError(), shared.ErrStaleRollback.Error()) {
		t.Errorf("LastError = %q, want stale rollback conflict", engine.LastError())
	}
}
