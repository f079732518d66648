// Google Tasks implementation of [RemoteStore]
//
// Built on google.golang.org/api/tasks/v1 with oauth2 token-source
// authentication. Token acquisition happens outside tmx; this client only
// consumes an existing oauth_client.json/token.json pair.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasksapi "google.golang.org/api/tasks/v1"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/shared"
)

const (
	// tasksScope is the OAuth scope for full task access.
	tasksScope = "https://www.googleapis.com/auth/tasks"

	// apiTimeout bounds each remote call.
	apiTimeout = 10 * time.Second

	// pageSize is the number of tasks requested per page.
	pageSize = 100

	// maxTaskPages bounds pagination so a misbehaving page token cannot
	// loop forever.
	maxTaskPages = 50

	defaultRateLimit = 5.0
)

// GoogleTasks implements [RemoteStore] against the Google Tasks API for a
// single account.
type GoogleTasks struct {
	svc     *tasksapi.Service
	name    string
	limiter *rate.Limiter
}

// GoogleTasksOpts configures a GoogleTasks client.
type GoogleTasksOpts struct {
	Name            string  // account label used in logs and errors
	OAuthClientPath string  // path to oauth_client.json
	TokenPath       string  // path to token.json
	RateLimit       float64 // requests per second (default 5)
}

// NewGoogleTasks creates a client from existing credential files. The token
// source refreshes automatically; a missing or unreadable credential file is
// a setup error, not an auth error.
func NewGoogleTasks(ctx context.Context, opts GoogleTasksOpts) (*GoogleTasks, error) {
	clientJSON, err := os.ReadFile(opts.OAuthClientPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading oauth client for %s: %v", shared.ErrMissingCredentials, opts.Name, err)
	}

	oauthConfig, err := google.ConfigFromJSON(clientJSON, tasksScope)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid oauth client for %s: %v", shared.ErrInvalidConfig, opts.Name, err)
	}

	tokenData, err := os.ReadFile(opts.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading token for %s: %v", shared.ErrMissingCredentials, opts.Name, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("%w: invalid token for %s: %v", shared.ErrInvalidConfig, opts.Name, err)
	}

	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, &token))

	svc, err := tasksapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}

	return &GoogleTasks{svc: svc, name: opts.Name, limiter: newLimiter(opts.RateLimit)}, nil
}

// NewGoogleTasksWithClient creates a client with a custom HTTP client and
// extra client options (used by tests to point at a stub server).
func NewGoogleTasksWithClient(ctx context.Context, name string, httpClient *http.Client, extra ...option.ClientOption) (*GoogleTasks, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, extra...)
	svc, err := tasksapi.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleTasks{svc: svc, name: name, limiter: newLimiter(0)}, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = defaultRateLimit
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func (g *GoogleTasks) Name() string { return g.name }

// FetchLists retrieves all task lists for the account.
func (g *GoogleTasks) FetchLists(ctx context.Context) ([]models.TaskList, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, wrapError(err)
	}

	var result []models.TaskList
	err := g.svc.Tasklists.List().MaxResults(pageSize).Pages(ctx, func(resp *tasksapi.TaskLists) error {
		for _, list := range resp.Items {
			result = append(result, models.TaskList{
				ID:      list.Id,
				Title:   list.Title,
				Updated: list.Updated,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err)
	}

	return result, nil
}

// FetchTasks retrieves all tasks in a list, draining page tokens up to
// maxTaskPages pages.
func (g *GoogleTasks) FetchTasks(ctx context.Context, listID string) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	var result []models.Task
	var pageToken string

	for page := 0; page < maxTaskPages; page++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, wrapError(err)
		}

		call := g.svc.Tasks.List(listID).
			MaxResults(pageSize).
			ShowCompleted(true).
			ShowHidden(true).
			ShowDeleted(false).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, wrapError(err)
		}

		for _, item := range resp.Items {
			result = append(result, taskFromAPI(item))
		}

		if resp.NextPageToken == "" {
			return result, nil
		}
		pageToken = resp.NextPageToken
	}

	return result, nil
}

// CreateTask creates a task and returns it carrying the server-assigned id.
func (g *GoogleTasks) CreateTask(ctx context.Context, listID string, task models.Task) (models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return models.Task{}, wrapError(err)
	}

	payload, err := taskToAPI(task)
	if err != nil {
		return models.Task{}, err
	}

	created, err := g.svc.Tasks.Insert(listID, payload).Context(ctx).Do()
	if err != nil {
		return models.Task{}, wrapError(err)
	}

	return taskFromAPI(created), nil
}

// UpdateTask applies a partial update. Unchanged fields are not transmitted;
// cleared fields are sent as explicit nulls.
func (g *GoogleTasks) UpdateTask(ctx context.Context, listID string, patch TaskPatch) error {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return wrapError(err)
	}

	payload, err := patchToAPI(patch)
	if err != nil {
		return err
	}

	_, err = g.svc.Tasks.Patch(listID, patch.ID, payload).Context(ctx).Do()
	if err != nil {
		return wrapError(err)
	}
	return nil
}

// DeleteTask removes a task.
func (g *GoogleTasks) DeleteTask(ctx context.Context, listID, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return wrapError(err)
	}

	if err := g.svc.Tasks.Delete(listID, taskID).Context(ctx).Do(); err != nil {
		return wrapError(err)
	}
	return nil
}

// CreateList creates a task list.
func (g *GoogleTasks) CreateList(ctx context.Context, title string) (models.TaskList, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return models.TaskList{}, wrapError(err)
	}

	created, err := g.svc.Tasklists.Insert(&tasksapi.TaskList{Title: title}).Context(ctx).Do()
	if err != nil {
		return models.TaskList{}, wrapError(err)
	}

	return models.TaskList{ID: created.Id, Title: created.Title, Updated: created.Updated}, nil
}

// RenameList changes a list's title.
func (g *GoogleTasks) RenameList(ctx context.Context, listID, title string) error {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return wrapError(err)
	}

	_, err := g.svc.Tasklists.Patch(listID, &tasksapi.TaskList{Title: title}).Context(ctx).Do()
	if err != nil {
		return wrapError(err)
	}
	return nil
}

// DeleteList removes a list and all of its tasks.
func (g *GoogleTasks) DeleteList(ctx context.Context, listID string) error {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return wrapError(err)
	}

	if err := g.svc.Tasklists.Delete(listID).Context(ctx).Do(); err != nil {
		return wrapError(err)
	}
	return nil
}

// taskFromAPI maps a wire task to the local model. Due timestamps collapse to
// their date component.
func taskFromAPI(t *tasksapi.Task) models.Task {
	task := models.Task{
		ID:       t.Id,
		Title:    t.Title,
		Notes:    t.Notes,
		Status:   t.Status,
		Due:      models.DueFromWire(t.Due),
		Updated:  t.Updated,
		Position: t.Position,
	}
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	if t.Completed != nil {
		if ts, err := time.Parse(time.RFC3339, *t.Completed); err == nil {
			utc := ts.UTC()
			task.CompletedAt = &utc
		}
	}
	return task
}

// taskToAPI maps a local task to the wire representation for creation.
func taskToAPI(t models.Task) (*tasksapi.Task, error) {
	payload := &tasksapi.Task{
		Title:  t.Title,
		Notes:  t.Notes,
		Status: t.Status,
	}
	if t.Due != "" {
		wire, err := models.DueToWire(t.Due)
		if err != nil {
			return nil, err
		}
		payload.Due = wire
	}
	if t.CompletedAt != nil {
		completed := t.CompletedAt.UTC().Format(time.RFC3339)
		payload.Completed = &completed
	}
	return payload, nil
}

// patchToAPI maps a three-state patch onto the API's ForceSendFields and
// NullFields mechanism.
func patchToAPI(patch TaskPatch) (*tasksapi.Task, error) {
	payload := &tasksapi.Task{}

	if v, ok := patch.Title.Value(); ok {
		payload.Title = v
		payload.ForceSendFields = append(payload.ForceSendFields, "Title")
	} else if patch.Title.Cleared() {
		payload.NullFields = append(payload.NullFields, "Title")
	}

	if v, ok := patch.Notes.Value(); ok {
		payload.Notes = v
		payload.ForceSendFields = append(payload.ForceSendFields, "Notes")
	} else if patch.Notes.Cleared() {
		payload.NullFields = append(payload.NullFields, "Notes")
	}

	if v, ok := patch.Due.Value(); ok {
		wire, err := models.DueToWire(v)
		if err != nil {
			return nil, err
		}
		payload.Due = wire
		payload.ForceSendFields = append(payload.ForceSendFields, "Due")
	} else if patch.Due.Cleared() {
		payload.NullFields = append(payload.NullFields, "Due")
	}

	if v, ok := patch.Status.Value(); ok {
		payload.Status = v
		payload.ForceSendFields = append(payload.ForceSendFields, "Status")
	}

	if v, ok := patch.CompletedAt.Value(); ok {
		completed := v.UTC().Format(time.RFC3339)
		payload.Completed = &completed
		payload.ForceSendFields = append(payload.ForceSendFields, "Completed")
	} else if patch.CompletedAt.Cleared() {
		payload.NullFields = append(payload.NullFields, "Completed")
	}

	return payload, nil
}

// wrapError maps transport errors onto the shared taxonomy.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &shared.AuthError{Detail: apiErr.Message}
		case http.StatusNotFound:
			return &shared.APIError{Code: apiErr.Code, Message: apiErr.Message}
		default:
			return &shared.APIError{Code: apiErr.Code, Message: apiErr.Message}
		}
	}

	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return fmt.Errorf("%w: %v", shared.ErrInvalidResponse, err)
	}

	return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
}
