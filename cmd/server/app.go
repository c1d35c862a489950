package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/finetunehub/internal/config"
	"github.com/kiranshivaraju/finetunehub/internal/store"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "finetunehub",
		Version: version,
		Usage:   "Fine-tuning job submission backend for miners",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "Path to a dotenv file; process environment takes precedence",
				Sources: cli.EnvVars("FINETUNEHUB_ENV_FILE"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			migrateCmd(),
		},
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env-file"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setLogger(cfg.Server.SlogLevel())
	return run(ctx, cfg)
}

func migrateCmd() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "PostgreSQL connection string",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Flags: flags,
				Action: func(_ context.Context, cmd *cli.Command) error {
					url, err := databaseURL(cmd)
					if err != nil {
						return err
					}
					if err := store.RunMigrations(url); err != nil {
						return err
					}
					slog.Info("database migrations applied")
					return nil
				},
			},
			{
				Name:  "version",
				Usage: "Print the current schema version",
				Flags: flags,
				Action: func(_ context.Context, cmd *cli.Command) error {
					url, err := databaseURL(cmd)
					if err != nil {
						return err
					}
					v, dirty, err := store.MigrationVersion(url)
					if err != nil {
						return err
					}
					slog.Info("schema version", "version", v, "dirty", dirty)
					return nil
				},
			},
		},
	}
}

func databaseURL(cmd *cli.Command) (string, error) {
	url := cmd.String("database-url")
	if url == "" {
		return "", fmt.Errorf("database URL is required (set DATABASE_URL or --database-url)")
	}
	return url, nil
}
