// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func accountFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "account",
		Aliases: []string{"a"},
		Usage:   "Account to operate on (personal or professional)",
		Value:   "personal",
	}
}

func listFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "list",
		Aliases: []string{"l"},
		Usage:   "List title or ID (default: first list)",
	}
}

func idsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "ids",
		Usage:    "Comma-separated task IDs or titles to select",
		Required: true,
	}
}

func moveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "from-account",
			Usage: "Source account",
			Value: "personal",
		},
		&cli.StringFlag{
			Name:  "from-list",
			Usage: "Source list title or ID",
		},
		&cli.StringFlag{
			Name:  "to-account",
			Usage: "Destination account",
			Value: "personal",
		},
		&cli.StringFlag{
			Name:     "to-list",
			Usage:    "Destination list title or ID",
			Required: true,
		},
	}
}

// setupCommand writes the config file and initializes the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Write default configuration and initialize the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "database",
				Usage: "Override database path",
			},
		},
		Action: r.Setup,
	}
}

// listsCommand handles task list operations
func listsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "lists",
		Aliases: []string{"ls"},
		Usage:   "Task list operations",
		Flags: []cli.Flag{
			accountFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Lists,
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Create a task list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "title"},
				},
				Flags:  []cli.Flag{accountFlag()},
				Action: r.ListAdd,
			},
			{
				Name:  "rename",
				Usage: "Rename a task list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "title"},
				},
				Flags:  []cli.Flag{accountFlag(), listFlag()},
				Action: r.ListRename,
			},
			{
				Name:  "rm",
				Usage: "Delete a task list",
				Flags: []cli.Flag{accountFlag(), listFlag()},
				Action: r.ListRm,
			},
		},
	}
}

// tasksCommand prints tasks in one list
func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tasks",
		Aliases: []string{"t"},
		Usage:   "Show tasks in a list",
		Flags: []cli.Flag{
			accountFlag(),
			listFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, csv, markdown",
				Value:   "text",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
		},
		Action: r.Tasks,
	}
}

// addCommand creates a task
func addCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a task",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "title"},
		},
		Flags: []cli.Flag{
			accountFlag(),
			listFlag(),
			&cli.StringFlag{
				Name:    "notes",
				Aliases: []string{"n"},
				Usage:   "Task notes",
			},
			&cli.StringFlag{
				Name:    "due",
				Aliases: []string{"d"},
				Usage:   "Due date (YYYY-MM-DD)",
			},
		},
		Action: r.Add,
	}
}

// doneCommand toggles completion
func doneCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "done",
		Usage: "Toggle a task's completion state",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task"},
		},
		Flags:  []cli.Flag{accountFlag(), listFlag()},
		Action: r.Done,
	}
}

// rmCommand deletes a task
func rmCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "rm",
		Usage: "Delete a task",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task"},
		},
		Flags:  []cli.Flag{accountFlag(), listFlag()},
		Action: r.Rm,
	}
}

// editCommand updates task fields
func editCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "edit",
		Usage: "Edit a task's title, notes, or due date",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task"},
		},
		Flags: []cli.Flag{
			accountFlag(),
			listFlag(),
			&cli.StringFlag{
				Name:  "title",
				Usage: "New title",
			},
			&cli.StringFlag{
				Name:    "notes",
				Aliases: []string{"n"},
				Usage:   "New notes",
			},
			&cli.BoolFlag{
				Name:  "clear-notes",
				Usage: "Remove notes",
			},
			&cli.StringFlag{
				Name:    "due",
				Aliases: []string{"d"},
				Usage:   "New due date (YYYY-MM-DD)",
			},
			&cli.BoolFlag{
				Name:  "clear-due",
				Usage: "Remove the due date",
			},
		},
		Action: r.Edit,
	}
}

// moveCommand relocates a task across lists or accounts
func moveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "move",
		Aliases: []string{"mv"},
		Usage:   "Move a task to another list, optionally in the other account",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "task"},
		},
		Flags:  moveFlags(),
		Action: r.Move,
	}
}

// bulkCommand handles multi-select operations
func bulkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "bulk",
		Usage: "Operate on several tasks at once (undoable)",
		Commands: []*cli.Command{
			{
				Name:   "complete",
				Usage:  "Complete the selected tasks",
				Flags:  []cli.Flag{accountFlag(), listFlag(), idsFlag()},
				Action: r.BulkComplete,
			},
			{
				Name:   "rm",
				Usage:  "Delete the selected tasks",
				Flags:  []cli.Flag{accountFlag(), listFlag(), idsFlag()},
				Action: r.BulkRm,
			},
			{
				Name:   "move",
				Usage:  "Move the selected tasks to another list",
				Flags:  append(moveFlags(), idsFlag()),
				Action: r.BulkMove,
			},
			{
				Name:  "due",
				Usage: "Set a due date on the selected tasks",
				Flags: []cli.Flag{
					accountFlag(),
					listFlag(),
					idsFlag(),
					&cli.StringFlag{
						Name:     "due",
						Aliases:  []string{"d"},
						Usage:    "Due date (YYYY-MM-DD)",
						Required: true,
					},
				},
				Action: r.BulkDue,
			},
		},
	}
}

// refreshCommand drops caches and refetches
func refreshCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "Drop caches and refetch lists and tasks for both accounts",
		Action: r.Refresh,
	}
}

// undoCommand replays the last bulk operation's inverse
func undoCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "undo",
		Usage:  "Undo the most recent bulk operation (once, this session)",
		Action: r.Undo,
	}
}
