package tasks

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/services"
	"github.com/taskmir/tmx/internal/shared"
	tu "github.com/taskmir/tmx/internal/testing"
)

// newTestEngine builds an engine over two seeded fake stores: a personal
// "Inbox" with three tasks and an empty professional "Work" list.
func newTestEngine(t *testing.T) (*Engine, *tu.FakeStore, *tu.FakeStore, *tu.FakeWindowStore) {
	t.Helper()

	personal := tu.NewFakeStore("personal")
	personal.SeedList(models.TaskList{ID: "p-inbox", Title: "Inbox"}, []models.Task{
		{ID: "p-1", Title: "Buy milk", Status: models.StatusPending},
		{ID: "p-2", Title: "Report", Status: models.StatusPending, Due: "2025-01-01"},
		{ID: "p-3", Title: "Old chore", Status: models.StatusCompleted},
	})

	professional := tu.NewFakeStore("professional")
	professional.SeedList(models.TaskList{ID: "w-main", Title: "Work"}, nil)

	wins := tu.NewFakeWindowStore()

	engine := NewEngine(EngineOpts{
		Stores: map[models.Account]services.RemoteStore{
			models.AccountPersonal:     personal,
			models.AccountProfessional: professional,
		},
		Windows: wins,
	})
	return engine, personal, professional, wins
}

// loadAll pulls lists and tasks for both seeded lists into engine state.
func loadAll(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()

	for account, listID := range map[models.Account]string{
		models.AccountPersonal:     "p-inbox",
		models.AccountProfessional: "w-main",
	} {
		if _, err := e.LoadLists(ctx, account); err != nil {
			t.Fatalf("LoadLists(%s) error = %v", account, err)
		}
		if _, err := e.LoadTasks(ctx, account, listID); err != nil {
			t.Fatalf("LoadTasks(%s) error = %v", account, err)
		}
	}
}

func TestLoadTasksUsesCache(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.LoadTasks(ctx, models.AccountPersonal, "p-inbox"); err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}
	if _, err := engine.LoadTasks(ctx, models.AccountPersonal, "p-inbox"); err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}
	if personal.FetchTaskCalls != 1 {
		t.Errorf("FetchTaskCalls = %d, want 1 (second load should hit cache)", personal.FetchTaskCalls)
	}

	engine.cache.InvalidateList(models.AccountPersonal, "p-inbox")
	if _, err := engine.LoadTasks(ctx, models.AccountPersonal, "p-inbox"); err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}
	if personal.FetchTaskCalls != 2 {
		t.Errorf("FetchTaskCalls = %d, want 2 after invalidation", personal.FetchTaskCalls)
	}
}

func TestLoadListsErrorSetsLastError(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	ctx := context.Background()

	personal.FailFetchLists = errors.New("boom")
	if _, err := engine.LoadLists(ctx, models.AccountPersonal); err == nil {
		t.Fatal("Expected error from failing store")
	}
	if engine.LastError() == "" {
		t.Error("LastError not set after failed load")
	}

	personal.FailFetchLists = nil
	if _, err := engine.LoadLists(ctx, models.AccountPersonal); err != nil {
		t.Fatalf("LoadLists() error = %v", err)
	}
	if engine.LastError() != "" {
		t.Errorf("LastError = %q, want cleared after successful load", engine.LastError())
	}
}

func TestCachedLoadClearsLastError(t *testing.T) {
	engine, personal, _, _ := newTestEngine(t)
	loadAll(t, engine)
	ctx := context.Background()

	engine.setLastError(errors.New("stale background failure"))
	if _, err := engine.LoadLists(ctx, models.AccountPersonal); err != nil {
		t.Fatalf("LoadLists() error = %v", err)
	}
	if engine.LastError() != "" {
		t.Errorf("LastError = %q, want cleared by cached list load", engine.LastError())
	}

	engine.setLastError(errors.New("stale background failure"))
	if _, err := engine.LoadTasks(ctx, models.AccountPersonal, "p-inbox"); err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}
	if engine.LastError() != "" {
		t.Errorf("LastError = %q, want cleared by cached task load", engine.LastError())
	}

	// Both loads were served from cache.
	if personal.FetchTaskCalls != 1 {
		t.Errorf("FetchTaskCalls = %d, want 1", personal.FetchTaskCalls)
	}
}

func TestUnknownAccount(t *testing.T) {
	engine := NewEngine(EngineOpts{Stores: map[models.Account]services.RemoteStore{}})

	_, err := engine.LoadLists(context.Background(), models.AccountPersonal)
	if !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("LoadLists() error = %v, want ErrInvalidArgument", err)
	}
}

func TestResolveList(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	loadAll(t, engine)

	list, err := engine.ResolveList(models.AccountPersonal, "Inbox")
	if err != nil {
		t.Fatalf("ResolveList() error = %v", err)
	}
	if list.ID != "p-inbox" {
		t.Errorf("ResolveList() = %q, want p-inbox", list.ID)
	}

	if _, err := engine.ResolveList(models.AccountPersonal, "Nope"); !errors.Is(err, shared.ErrListNotFound) {
		t.Errorf("ResolveList() error = %v, want ErrListNotFound", err)
	}
}

func TestRefreshAllJoinsFailures(t *testing.T) {
	engine, _, professional, _ := newTestEngine(t)
	professional.FailFetchLists = errors.New("offline")

	err := engine.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("Expected joined error from failing account")
	}

	// The healthy account's data must still land.
	if got := engine.TasksIn(models.AccountPersonal, "p-inbox"); len(got) != 3 {
		t.Errorf("Expected 3 personal tasks despite professional failure, got %d", len(got))
	}
}

func TestSelection(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	engine.Select("b", "a", "c")
	engine.Deselect("c")

	if got := engine.Selected(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Selected() = %v, want [a b]", got)
	}

	engine.ClearSelection()
	if got := engine.Selected(); len(got) != 0 {
		t.Errorf("Selected() = %v after clear, want empty", got)
	}
}

func TestTasksInReturnsSnapshot(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	loadAll(t, engine)

	snap := engine.TasksIn(models.AccountPersonal, "p-inbox")
	snap[0].Title = "Mutated"

	again := engine.TasksIn(models.AccountPersonal, "p-inbox")
	if again[0].Title != "Buy milk" {
		t.Errorf("Engine state mutated through snapshot: %q", again[0].Title)
	}
}
