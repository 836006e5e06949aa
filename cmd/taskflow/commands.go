package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/config"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/database"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/middleware"
)

func runMigrate(c *cli.Context) error {
	ctx := c.Context

	databaseURL := c.String("database-url")
	if databaseURL == "" {
		return errors.New("database-url is required to migrate")
	}

	db, err := database.New(ctx, databaseURL, database.PoolOptions{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if c.Bool("down") {
		if err := database.RollbackMigration(ctx, db.Pool()); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return nil
	}

	version, err := database.RunMigrations(ctx, db.Pool())
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database is up to date", "version", version)
	return nil
}

func runDirectoryImport(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("directory file is required")
	}

	storage, err := config.ParseStorage(c.String("storage"))
	if err != nil {
		return err
	}
	if storage != config.StoragePostgres {
		return errors.New("directory import needs postgres storage; use --directory-file with memory storage")
	}

	be, err := openPostgres(c, true)
	if err != nil {
		return err
	}
	defer be.Close()

	return importDirectory(c.Context, path, be.writer)
}

func runToken(c *cli.Context) error {
	secret := c.String("jwt-secret")
	if secret == "" {
		return errors.New("jwt-secret is required to issue tokens")
	}

	auth := middleware.NewAuthMiddleware(secret, c.String("jwt-issuer"), nil)
	token, err := auth.IssueToken(c.String("employee"), c.Duration("ttl"))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(c.App.Writer, token)
	return err
}
