package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskmir/tmx/internal/shared"
)

// Account identifies one of the two independent remote task namespaces.
type Account string

const (
	AccountPersonal     Account = "personal"
	AccountProfessional Account = "professional"
)

// Accounts lists all known accounts in display order.
func Accounts() []Account {
	return []Account{AccountPersonal, AccountProfessional}
}

// ParseAccount resolves a user-supplied account name (case-insensitive).
func ParseAccount(s string) (Account, error) {
	switch Account(strings.ToLower(strings.TrimSpace(s))) {
	case AccountPersonal:
		return AccountPersonal, nil
	case AccountProfessional:
		return AccountProfessional, nil
	default:
		return "", fmt.Errorf("%w: unknown account %q", shared.ErrInvalidArgument, s)
	}
}

// Task status values, matching the remote store's wire representation.
const (
	StatusPending   = "needsAction"
	StatusCompleted = "completed"
)

// DueLayout is the date-only layout used for due dates throughout the local
// model. Due dates have no time component; the wire format adds one.
const DueLayout = "2006-01-02"

const placeholderPrefix = "local-"

// NewPlaceholderID generates a local id for a task that has not been synced yet.
func NewPlaceholderID() string {
	return placeholderPrefix + shared.GenerateID()
}

// IsPlaceholderID reports whether id was generated locally and never confirmed
// by the remote store.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// Task represents a single task in one (account, list).
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	Status      string     `json:"status"`
	Due         string     `json:"due,omitempty"` // date-only, DueLayout
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Updated     string     `json:"updated,omitempty"`
	Position    string     `json:"position,omitempty"`
}

// Completed reports whether the task's status is completed.
func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}

// Clone returns a deep copy of the task, safe to hand out as a snapshot.
func (t Task) Clone() Task {
	c := t
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return c
}

// Validate checks the minimum requirements for a task.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: task title is required", shared.ErrInvalidInput)
	}
	if t.Status != StatusPending && t.Status != StatusCompleted {
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, t.Status)
	}
	if t.Due != "" {
		if _, err := time.Parse(DueLayout, t.Due); err != nil {
			return fmt.Errorf("%w: due date must be %s: %v", shared.ErrInvalidInput, DueLayout, err)
		}
	}
	return nil
}

// TaskList represents a named list of tasks within one account.
type TaskList struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Updated string `json:"updated,omitempty"`
}

// TimeWindow is auxiliary scheduling metadata attached to a task by id.
type TimeWindow struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
}

// DueToWire converts a date-only due string to the full RFC 3339 timestamp the
// remote store expects. The date-only meaning is preserved: the time component
// is always midnight UTC.
func DueToWire(due string) (string, error) {
	d, err := time.Parse(DueLayout, due)
	if err != nil {
		return "", fmt.Errorf("%w: invalid due date %q", shared.ErrInvalidInput, due)
	}
	return d.UTC().Format("2006-01-02T00:00:00.000Z"), nil
}

// DueFromWire strips the time component from a remote due timestamp.
func DueFromWire(wire string) string {
	if wire == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, wire); err == nil {
		return t.UTC().Format(DueLayout)
	}
	if len(wire) >= len(DueLayout) {
		if _, err := time.Parse(DueLayout, wire[:len(DueLayout)]); err == nil {
			return wire[:len(DueLayout)]
		}
	}
	return ""
}
