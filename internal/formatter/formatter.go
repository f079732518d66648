// Package formatter renders task and list collections to the output formats
// the CLI offers (plain text, CSV, Markdown).
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/taskmir/tmx/internal/models"
)

// TasksToCSV converts tasks to CSV with columns: ID, Title, Notes, Status, Due, CompletedAt
func TasksToCSV(tasks []models.Task) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Notes", "Status", "Due", "CompletedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, task := range tasks {
		completed := ""
		if task.CompletedAt != nil {
			completed = task.CompletedAt.Format(time.RFC3339)
		}
		record := []string{
			task.ID,
			task.Title,
			task.Notes,
			task.Status,
			task.Due,
			completed,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TasksToMarkdown converts tasks to a Markdown checklist under a list heading.
func TasksToMarkdown(listTitle string, tasks []models.Task) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", listTitle))
	buf.WriteString(fmt.Sprintf("**Tasks**: %d\n\n", len(tasks)))

	for _, task := range tasks {
		box := "[ ]"
		if task.Completed() {
			box = "[x]"
		}
		buf.WriteString(fmt.Sprintf("- %s %s", box, task.Title))
		if task.Due != "" {
			buf.WriteString(fmt.Sprintf(" (due %s)", task.Due))
		}
		buf.WriteString("\n")
		if task.Notes != "" {
			buf.WriteString(fmt.Sprintf("  - %s\n", task.Notes))
		}
	}

	return buf.Bytes()
}

// TasksToText converts tasks to an aligned plain-text listing.
func TasksToText(tasks []models.Task) []byte {
	var buf bytes.Buffer

	for i, task := range tasks {
		mark := " "
		if task.Completed() {
			mark = "x"
		}
		buf.WriteString(fmt.Sprintf("%3d. [%s] %s", i+1, mark, task.Title))
		if task.Due != "" {
			buf.WriteString(fmt.Sprintf("  due:%s", task.Due))
		}
		if models.IsPlaceholderID(task.ID) {
			buf.WriteString("  (syncing)")
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// ListsToText converts a list collection to a plain-text listing.
func ListsToText(lists []models.TaskList) []byte {
	var buf bytes.Buffer

	for i, list := range lists {
		buf.WriteString(fmt.Sprintf("%3d. %s (%s)\n", i+1, list.Title, list.ID))
	}

	return buf.Bytes()
}
