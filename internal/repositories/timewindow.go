package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/shared"
)

const timeWindowSchema = `
	CREATE TABLE IF NOT EXISTS time_windows (
		task_id TEXT PRIMARY KEY,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		all_day INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)
`

// Migrate creates the schema if it does not exist yet.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(timeWindowSchema); err != nil {
		return fmt.Errorf("failed to create time_windows table: %w", err)
	}
	return nil
}

// TimeWindowRepository stores per-task time windows.
type TimeWindowRepository struct {
	db *sql.DB
}

// NewTimeWindowRepository creates a new TimeWindowRepository with the given database connection
func NewTimeWindowRepository(db *sql.DB) *TimeWindowRepository {
	return &TimeWindowRepository{db: db}
}

// Get retrieves the time window for a task, or shared.ErrWindowNotFound.
func (r *TimeWindowRepository) Get(taskID string) (*models.TimeWindow, error) {
	query := `
		SELECT start_at, end_at, all_day
		FROM time_windows
		WHERE task_id = ?
	`

	var startStr, endStr string
	var allDay int
	err := r.db.QueryRow(query, taskID).Scan(&startStr, &endStr, &allDay)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrWindowNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query time window: %w", err)
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt start_at for %s: %w", taskID, err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt end_at for %s: %w", taskID, err)
	}

	return &models.TimeWindow{Start: start, End: end, AllDay: allDay != 0}, nil
}

// Save inserts or replaces the time window for a task.
func (r *TimeWindowRepository) Save(taskID string, w models.TimeWindow) error {
	query := `
		INSERT INTO time_windows (task_id, start_at, end_at, all_day, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			all_day = excluded.all_day,
			updated_at = excluded.updated_at
	`

	allDay := 0
	if w.AllDay {
		allDay = 1
	}

	_, err := r.db.Exec(query,
		taskID,
		w.Start.UTC().Format(time.RFC3339),
		w.End.UTC().Format(time.RFC3339),
		allDay,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save time window: %w", err)
	}

	return nil
}

// Delete removes the time window for a task. Deleting an absent window is
// not an error.
func (r *TimeWindowRepository) Delete(taskID string) error {
	if _, err := r.db.Exec(`DELETE FROM time_windows WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete time window: %w", err)
	}
	return nil
}
