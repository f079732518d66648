package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/taskmir/tmx/internal/models"
)

func sampleTasks() []models.Task {
	done := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return []models.Task{
		{ID: "t1", Title: "Buy milk", Status: models.StatusPending, Due: "2025-06-15"},
		{ID: "t2", Title: "Old chore", Notes: "see ticket", Status: models.StatusCompleted, CompletedAt: &done},
		{ID: models.NewPlaceholderID(), Title: "Just added", Status: models.StatusPending},
	}
}

func TestTasksToCSV(t *testing.T) {
	data, err := TasksToCSV(sampleTasks())
	if err != nil {
		t.Fatalf("TasksToCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("Got %d lines, want header + 3 rows", len(lines))
	}
	if lines[0] != "ID,Title,Notes,Status,Due,CompletedAt" {
		t.Errorf("Header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2025-06-15") {
		t.Errorf("Row missing due date: %q", lines[1])
	}
	if !strings.Contains(lines[2], "2025-06-01T10:00:00Z") {
		t.Errorf("Row missing completion timestamp: %q", lines[2])
	}
}

func TestTasksToMarkdown(t *testing.T) {
	out := string(TasksToMarkdown("Inbox", sampleTasks()))

	if !strings.HasPrefix(out, "# Inbox\n") {
		t.Errorf("Missing heading: %q", out)
	}
	if !strings.Contains(out, "- [ ] Buy milk (due 2025-06-15)") {
		t.Errorf("Missing pending checklist item:\n%s", out)
	}
	if !strings.Contains(out, "- [x] Old chore") {
		t.Errorf("Missing completed checklist item:\n%s", out)
	}
	if !strings.Contains(out, "  - see ticket") {
		t.Errorf("Missing notes line:\n%s", out)
	}
}

func TestTasksToText(t *testing.T) {
	out := string(TasksToText(sampleTasks()))

	if !strings.Contains(out, "[ ] Buy milk") {
		t.Errorf("Missing pending marker:\n%s", out)
	}
	if !strings.Contains(out, "[x] Old chore") {
		t.Errorf("Missing completed marker:\n%s", out)
	}
	if !strings.Contains(out, "(syncing)") {
		t.Errorf("Placeholder task not flagged as syncing:\n%s", out)
	}
	if !strings.Contains(out, "due:2025-06-15") {
		t.Errorf("Missing due annotation:\n%s", out)
	}
}

func TestListsToText(t *testing.T) {
	out := string(ListsToText([]models.TaskList{
		{ID: "l1", Title: "Inbox"},
		{ID: "l2", Title: "Errands"},
	}))

	if !strings.Contains(out, "Inbox (l1)") || !strings.Contains(out, "Errands (l2)") {
		t.Errorf("Unexpected output:\n%s", out)
	}
}

func TestEmptyCollections(t *testing.T) {
	if out := TasksToText(nil); len(out) != 0 {
		t.Errorf("TasksToText(nil) = %q, want empty", out)
	}
	if out := ListsToText(nil); len(out) != 0 {
		t.Errorf("ListsToText(nil) = %q, want empty", out)
	}
}
