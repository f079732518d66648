package main

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/taskmir/tmx/internal/cache"
	"github.com/taskmir/tmx/internal/models"
	"github.com/taskmir/tmx/internal/repositories"
	"github.com/taskmir/tmx/internal/services"
	"github.com/taskmir/tmx/internal/shared"
	"github.com/taskmir/tmx/internal/tasks"
)

func main() {
	logger := shared.NewLogger(nil)
	ctx := context.Background()

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("config.toml unreadable, using defaults", "err", err)
		}
	}

	stores := map[models.Account]services.RemoteStore{}
	for account, creds := range map[models.Account]shared.AccountConfig{
		models.AccountPersonal:     config.Accounts.Personal,
		models.AccountProfessional: config.Accounts.Professional,
	} {
		if creds.OAuthClientPath == "" {
			continue
		}
		store, err := services.NewGoogleTasks(ctx, services.GoogleTasksOpts{
			Name:            string(account),
			OAuthClientPath: creds.OAuthClientPath,
			TokenPath:       creds.TokenPath,
			RateLimit:       config.Sync.RateLimit,
		})
		if err != nil {
			logger.Warn("account unavailable", "account", account, "err", err)
			continue
		}
		stores[account] = store
	}

	var windows tasks.TimeWindowStore
	if db, err := shared.NewDatabase(config.Database.Path); err == nil {
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
		if err := repositories.Migrate(db); err == nil {
			windows = repositories.NewTimeWindowRepository(db)
			defer db.Close()
		} else {
			logger.Warn("database migration failed, time windows disabled", "err", err)
			db.Close()
		}
	} else {
		logger.Warn("database unavailable, time windows disabled", "err", err)
	}

	engine := tasks.NewEngine(tasks.EngineOpts{
		Stores: stores,
		Cache: cache.New(
			time.Duration(config.Sync.TaskTTLMinutes)*time.Minute,
			time.Duration(config.Sync.ListTTLMinutes)*time.Minute,
		),
		Windows: windows,
		Logger:  logger,
	})

	runner := NewRunner(RunnerOpts{
		Config: config,
		Engine: engine,
		Logger: logger,
	})

	app := &cli.Command{
		Name:    "tmx",
		Usage:   "Manage Google Tasks across two accounts from the terminal",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(logger, log.DebugLevel)
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	err := app.Run(ctx, os.Args)

	// Background reconciliation must land before the process exits.
	engine.Wait()

	if err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
