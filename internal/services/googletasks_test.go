package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/shared"
)

// newStubClient points a GoogleTasks client at a local stub server.
func newStubClient(t *testing.T, handler http.Handler) *GoogleTasks {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewGoogleTasksWithClient(context.Background(), "test", srv.Client(),
		option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestFetchTasksPagination(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"id": "t1", "title": "First", "status": "needsAction"},
				},
				"nextPageToken": "page-2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "t2", "title": "Second", "status": "completed"},
			},
		})
	})

	client := newStubClient(t, handler)
	tasks, err := client.FetchTasks(context.Background(), "list-1")
	if err != nil {
		t.Fatalf("FetchTasks() error = %v", err)
	}

	if len(tasks) != 2 {
		t.Fatalf("Got %d tasks, want 2 across pages", len(tasks))
	}
	if tasks[0].ID != "t1" || tasks[1].ID != "t2" {
		t.Errorf("Task ids = %q, %q", tasks[0].ID, tasks[1].ID)
	}
}

func TestFetchTasksDueCollapsesToDate(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "t1", "title": "Report", "status": "needsAction", "due": "2025-06-15T00:00:00.000Z"},
			},
		})
	})

	client := newStubClient(t, handler)
	tasks, err := client.FetchTasks(context.Background(), "list-1")
	if err != nil {
		t.Fatalf("FetchTasks() error = %v", err)
	}
	if tasks[0].Due != "2025-06-15" {
		t.Errorf("Due = %q, want date-only", tasks[0].Due)
	}
}

func TestFetchListsNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 404, "message": "not found"},
		})
	})

	client := newStubClient(t, handler)
	_, err := client.FetchLists(context.Background())
	if !errors.Is(err, shared.ErrAPIRequest) {
		t.Fatalf("FetchLists() error = %v, want ErrAPIRequest", err)
	}

	var apiErr *shared.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		t.Errorf("Expected APIError with code 404, got %v", err)
	}
}

func TestCreateTask(t *testing.T) {
	var gotPayload map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&gotPayload)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "srv-1", "title": "Report", "status": "needsAction", "due": "2025-06-15T00:00:00.000Z",
		})
	})

	client := newStubClient(t, handler)
	created, err := client.CreateTask(context.Background(), "list-1",
		models.Task{Title: "Report", Status: models.StatusPending, Due: "2025-06-15"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if created.ID != "srv-1" {
		t.Errorf("ID = %q, want server-assigned id", created.ID)
	}
	if created.Due != "2025-06-15" {
		t.Errorf("Due = %q, want date-only", created.Due)
	}
	if due, _ := gotPayload["due"].(string); !strings.HasPrefix(due, "2025-06-15T00:00:00") {
		t.Errorf("Wire due = %q, want midnight UTC timestamp", due)
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name   string
		in     error
		target error
	}{
		{"unauthorized", &googleapi.Error{Code: 401, Message: "token expired"}, shared.ErrNotAuthenticated},
		{"forbidden", &googleapi.Error{Code: 403}, shared.ErrNotAuthenticated},
		{"not found", &googleapi.Error{Code: 404}, shared.ErrAPIRequest},
		{"server error", &googleapi.Error{Code: 500}, shared.ErrAPIRequest},
		{"deadline", context.DeadlineExceeded, shared.ErrTimeout},
		{"json garbage", &json.SyntaxError{}, shared.ErrInvalidResponse},
		{"plain", errors.New("connection refused"), shared.ErrAPIRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := wrapError(tt.in); !errors.Is(err, tt.target) {
				t.Errorf("wrapError(%v) = %v, want %v", tt.in, err, tt.target)
			}
		})
	}

	if wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}

func TestPatchToAPI(t *testing.T) {
	completed := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	patch := TaskPatch{
		ID:          "t1",
		Title:       SetField("New title"),
		Notes:       ClearField[string](),
		Status:      SetField(models.StatusCompleted),
		CompletedAt: SetField(completed),
	}

	payload, err := patchToAPI(patch)
	if err != nil {
		t.Fatalf("patchToAPI() error = %v", err)
	}

	if payload.Title != "New title" {
		t.Errorf("Title = %q", payload.Title)
	}
	wantForce := map[string]bool{"Title": true, "Status": true, "Completed": true}
	for _, f := range payload.ForceSendFields {
		if !wantForce[f] {
			t.Errorf("Unexpected ForceSendField %q", f)
		}
		delete(wantForce, f)
	}
	if len(wantForce) != 0 {
		t.Errorf("Missing ForceSendFields: %v", wantForce)
	}
	if len(payload.NullFields) != 1 || payload.NullFields[0] != "Notes" {
		t.Errorf("NullFields = %v, want [Notes]", payload.NullFields)
	}
	// Due unchanged: neither forced nor nulled.
	for _, f := range payload.ForceSendFields {
		if f == "Due" {
			t.Error("Unchanged Due was force-sent")
		}
	}
}

func TestPatchToAPIInvalidDue(t *testing.T) {
	patch := TaskPatch{ID: "t1", Due: SetField("not a date")}
	if _, err := patchToAPI(patch); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("patchToAPI() error = %v, want ErrInvalidInput", err)
	}
}

func TestFieldStates(t *testing.T) {
	var unchanged Field[string]
	if !unchanged.Unchanged() {
		t.Error("Zero field should be unchanged")
	}

	set := SetField("x")
	if v, ok := set.Value(); !ok || v != "x" {
		t.Errorf("SetField Value() = %q, %v", v, ok)
	}
	if set.Cleared() {
		t.Error("Set field reported cleared")
	}

	cleared := ClearField[string]()
	if _, ok := cleared.Value(); ok {
		t.Error("Cleared field reported a value")
	}
	if !cleared.Cleared() {
		t.Error("Cleared field not reported cleared")
	}
}
