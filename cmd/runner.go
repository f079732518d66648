package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/taskmir/tmx/internal/formatter"
	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/repositories"
	"github.com/taskmir/tmx/internal/shared"
	"github.com/taskmir/tmx/internal/tasks"
	"github.com/taskmir/tmx/internal/ui"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config   *shared.Config
	engine   *tasks.Engine
	logger   *log.Logger
	output   io.Writer
	lastUndo *tasks.UndoRecord
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Engine *tasks.Engine
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		engine: opts.Engine,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, listsCommand, tasksCommand, addCommand, doneCommand,
		rmCommand, editCommand, moveCommand, bulkCommand, refreshCommand, undoCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}

// resolveTarget loads an account's lists and resolves the --list flag to a
// concrete list, loading its tasks into engine state.
func (r *Runner) resolveTarget(ctx context.Context, cmd *cli.Command, accountFlag, listFlag string) (models.Account, models.TaskList, error) {
	account, err := models.ParseAccount(cmd.String(accountFlag))
	if err != nil {
		return "", models.TaskList{}, err
	}

	lists, err := r.engine.LoadLists(ctx, account)
	if err != nil {
		return "", models.TaskList{}, err
	}

	var list models.TaskList
	if name := cmd.String(listFlag); name != "" {
		if list, err = r.engine.ResolveList(account, name); err != nil {
			return "", models.TaskList{}, err
		}
	} else {
		if len(lists) == 0 {
			return "", models.TaskList{}, fmt.Errorf("%w: account %s has no lists", shared.ErrListNotFound, account)
		}
		list = lists[0]
	}

	if _, err := r.engine.LoadTasks(ctx, account, list.ID); err != nil {
		return "", models.TaskList{}, err
	}

	return account, list, nil
}

// findTaskRef resolves a task by id or exact title within loaded state.
func (r *Runner) findTaskRef(account models.Account, listID, ref string) (models.Task, error) {
	for _, t := range r.engine.TasksIn(account, listID) {
		if t.ID == ref || t.Title == ref {
			return t, nil
		}
	}
	return models.Task{}, fmt.Errorf("%w: %q", shared.ErrTaskNotFound, ref)
}

// reportOutcome waits for background reconciliation and surfaces the engine's
// last-error status, if any.
func (r *Runner) reportOutcome() {
	r.engine.Wait()
	if msg := r.engine.LastError(); msg != "" {
		r.writePlain("%s %s\n", ui.Warn("sync warning:"), msg)
	}
}

// Setup writes the default config file and initializes the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		r.logger.Warn("config not written", "path", path, "err", err)
	} else {
		r.writePlain("%s %s\n", ui.OK("wrote"), path)
	}

	dbPath := r.config.Database.Path
	if override := cmd.String("database"); override != "" {
		dbPath = override
	}

	db, err := shared.NewDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repositories.Migrate(db); err != nil {
		return err
	}

	r.writePlain("%s %s\n", ui.OK("database ready:"), dbPath)
	return nil
}

// Lists prints the task lists for one account.
func (r *Runner) Lists(ctx context.Context, cmd *cli.Command) error {
	account, err := models.ParseAccount(cmd.String("account"))
	if err != nil {
		return err
	}

	lists, err := r.engine.LoadLists(ctx, account)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(lists, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", ui.Title(fmt.Sprintf("%s lists", account)))
	r.output.Write(formatter.ListsToText(lists))
	return nil
}

// ListAdd creates a task list.
func (r *Runner) ListAdd(ctx context.Context, cmd *cli.Command) error {
	account, err := models.ParseAccount(cmd.String("account"))
	if err != nil {
		return err
	}

	title := cmd.StringArg("title")
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: list title", shared.ErrMissingArgument)
	}

	list, err := r.engine.CreateList(ctx, account, title)
	if err != nil {
		return err
	}

	r.writePlain("%s %s (%s)\n", ui.OK("created"), list.Title, list.ID)
	return nil
}

// ListRename renames a task list.
func (r *Runner) ListRename(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	title := cmd.StringArg("title")
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: new title", shared.ErrMissingArgument)
	}

	if err := r.engine.RenameList(ctx, account, list.ID, title); err != nil {
		return err
	}

	r.writePlain("%s %s -> %s\n", ui.OK("renamed"), list.Title, title)
	return nil
}

// ListRm deletes a task list.
func (r *Runner) ListRm(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	if err := r.engine.DeleteList(ctx, account, list.ID); err != nil {
		return err
	}

	r.writePlain("%s %s\n", ui.OK("deleted"), list.Title)
	return nil
}

// Tasks prints the tasks in one list in the requested format.
func (r *Runner) Tasks(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	items := r.engine.TasksIn(account, list.ID)

	switch cmd.String("format") {
	case "json":
		return r.writeJSON(items, cmd.Bool("pretty"))
	case "csv":
		data, err := formatter.TasksToCSV(items)
		if err != nil {
			return err
		}
		r.output.Write(data)
	case "markdown":
		r.output.Write(formatter.TasksToMarkdown(list.Title, items))
	default:
		r.writePlain("%s\n", ui.Title(fmt.Sprintf("%s / %s", account, list.Title)))
		r.output.Write(formatter.TasksToText(items))
	}
	return nil
}

// Add creates a task optimistically and waits for reconciliation.
func (r *Runner) Add(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	title := cmd.StringArg("title")
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: task title", shared.ErrMissingArgument)
	}

	task, err := r.engine.CreateTask(ctx, account, list.ID, title, cmd.String("notes"), cmd.String("due"))
	if err != nil {
		return err
	}

	r.writePlain("%s %s\n", ui.OK("added"), task.Title)
	r.reportOutcome()
	return nil
}

// Done toggles a task's completion state.
func (r *Runner) Done(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	task, err := r.findTaskRef(account, list.ID, cmd.StringArg("task"))
	if err != nil {
		return err
	}

	toggled, err := r.engine.ToggleCompletion(ctx, account, list.ID, task.ID)
	if err != nil {
		return err
	}

	if toggled.Completed() {
		r.writePlain("%s %s\n", ui.OK("completed"), toggled.Title)
	} else {
		r.writePlain("%s %s\n", ui.OK("reopened"), toggled.Title)
	}
	r.reportOutcome()
	return nil
}

// Rm deletes a task.
func (r *Runner) Rm(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	task, err := r.findTaskRef(account, list.ID, cmd.StringArg("task"))
	if err != nil {
		return err
	}

	if err := r.engine.DeleteTask(ctx, account, list.ID, task.ID); err != nil {
		return err
	}

	r.writePlain("%s %s\n", ui.OK("deleted"), task.Title)
	r.reportOutcome()
	return nil
}

// Edit updates a task's title, notes, or due date.
func (r *Runner) Edit(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	task, err := r.findTaskRef(account, list.ID, cmd.StringArg("task"))
	if err != nil {
		return err
	}

	updated := task.Clone()
	if v := cmd.String("title"); v != "" {
		updated.Title = v
	}
	if v := cmd.String("notes"); v != "" {
		updated.Notes = v
	}
	if cmd.Bool("clear-notes") {
		updated.Notes = ""
	}
	if v := cmd.String("due"); v != "" {
		updated.Due = v
	}
	if cmd.Bool("clear-due") {
		updated.Due = ""
	}

	if err := r.engine.UpdateTask(ctx, account, list.ID, updated); err != nil {
		return err
	}

	r.writePlain("%s %s\n", ui.OK("updated"), updated.Title)
	r.reportOutcome()
	return nil
}

// Move relocates a task across lists or accounts.
func (r *Runner) Move(ctx context.Context, cmd *cli.Command) error {
	srcAccount, srcList, err := r.resolveTarget(ctx, cmd, "from-account", "from-list")
	if err != nil {
		return err
	}
	dstAccount, dstList, err := r.resolveTarget(ctx, cmd, "to-account", "to-list")
	if err != nil {
		return err
	}

	task, err := r.findTaskRef(srcAccount, srcList.ID, cmd.StringArg("task"))
	if err != nil {
		return err
	}

	moved, err := r.engine.MoveTask(ctx, nil, task.ID, srcAccount, srcList.ID, dstAccount, dstList.ID)
	if err != nil {
		return err
	}

	r.writePlain("%s %s -> %s/%s\n", ui.OK("moved"), moved.Title, dstAccount, dstList.Title)
	return nil
}

// bulkIDs resolves the --ids flag (comma separated ids or titles) against
// loaded state and selects them on the engine.
func (r *Runner) bulkIDs(cmd *cli.Command, account models.Account, listID string) ([]string, error) {
	raw := cmd.String("ids")
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: --ids", shared.ErrMissingArgument)
	}

	var ids []string
	for _, ref := range strings.Split(raw, ",") {
		task, err := r.findTaskRef(account, listID, strings.TrimSpace(ref))
		if err != nil {
			return nil, err
		}
		ids = append(ids, task.ID)
	}

	r.engine.Select(ids...)
	return ids, nil
}

func (r *Runner) reportUndo(rec *tasks.UndoRecord) {
	r.lastUndo = rec
	r.writePlain("%s %d task(s), undo available this session (kind=%s)\n",
		ui.OK("done:"), rec.Count(), rec.Kind)
}

// BulkComplete completes the selected tasks as one undoable unit.
func (r *Runner) BulkComplete(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	ids, err := r.bulkIDs(cmd, account, list.ID)
	if err != nil {
		return err
	}

	rec, err := r.engine.BulkComplete(ctx, nil, ids, account, list.ID)
	if rec != nil {
		r.reportUndo(rec)
	}
	return err
}

// BulkRm deletes the selected tasks as one undoable unit.
func (r *Runner) BulkRm(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	ids, err := r.bulkIDs(cmd, account, list.ID)
	if err != nil {
		return err
	}

	rec, err := r.engine.BulkDelete(ctx, nil, ids, account, list.ID)
	if rec != nil {
		r.reportUndo(rec)
	}
	return err
}

// BulkMove moves the selected tasks as one undoable unit.
func (r *Runner) BulkMove(ctx context.Context, cmd *cli.Command) error {
	srcAccount, srcList, err := r.resolveTarget(ctx, cmd, "from-account", "from-list")
	if err != nil {
		return err
	}
	dstAccount, dstList, err := r.resolveTarget(ctx, cmd, "to-account", "to-list")
	if err != nil {
		return err
	}

	ids, err := r.bulkIDs(cmd, srcAccount, srcList.ID)
	if err != nil {
		return err
	}

	rec, err := r.engine.BulkMove(ctx, nil, ids, srcAccount, srcList.ID, dstAccount, dstList.ID)
	if rec != nil {
		r.reportUndo(rec)
	}
	return err
}

// BulkDue overwrites due dates on the selected tasks as one undoable unit.
func (r *Runner) BulkDue(ctx context.Context, cmd *cli.Command) error {
	account, list, err := r.resolveTarget(ctx, cmd, "account", "list")
	if err != nil {
		return err
	}

	ids, err := r.bulkIDs(cmd, account, list.ID)
	if err != nil {
		return err
	}

	rec, err := r.engine.BulkSetDueDate(ctx, nil, ids, account, list.ID, cmd.String("due"), nil)
	if rec != nil {
		r.reportUndo(rec)
	}
	return err
}

// Undo replays the most recent bulk operation's inverse.
func (r *Runner) Undo(ctx context.Context, cmd *cli.Command) error {
	if r.lastUndo == nil {
		return fmt.Errorf("%w: nothing to undo", shared.ErrInvalidInput)
	}

	rec := r.lastUndo
	r.lastUndo = nil

	if err := r.engine.Undo(ctx, nil, rec); err != nil {
		return err
	}

	r.writePlain("%s %d task(s) restored (kind=%s)\n", ui.OK("undone:"), rec.Count(), rec.Kind)
	return nil
}

// Refresh drops caches and refetches everything for both accounts.
func (r *Runner) Refresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.engine.RefreshAll(ctx); err != nil {
		return err
	}
	r.writePlain("%s\n", ui.OK("refreshed"))
	return nil
}
