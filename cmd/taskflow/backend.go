package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/config"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/database"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/repository"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/repository/memory"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/workflow"
)

// directoryWriter stores seeded employees and projects.
type directoryWriter interface {
	UpsertEmployee(ctx context.Context, e domain.Employee) error
	UpsertProject(ctx context.Context, p domain.Project) error
}

// memoryDirectoryWriter adapts the in-memory directory.
type memoryDirectoryWriter struct {
	dir *memory.Directory
}

func (w memoryDirectoryWriter) UpsertEmployee(_ context.Context, e domain.Employee) error {
	w.dir.AddEmployee(e)
	return nil
}

func (w memoryDirectoryWriter) UpsertProject(_ context.Context, p domain.Project) error {
	w.dir.AddProject(p)
	return nil
}

// backend bundles the stores selected by --storage.
type backend struct {
	storage   config.Storage
	tasks     service.TaskStore
	history   service.HistoryStore
	directory service.Directory
	writer    directoryWriter
	db        *database.DB
}

// openBackend opens the configured stores. With postgres, migrate applies
// pending migrations first. A --directory-file is imported afterwards.
func openBackend(c *cli.Context, migrate bool) (*backend, error) {
	ctx := c.Context

	storage, err := config.ParseStorage(c.String("storage"))
	if err != nil {
		return nil, err
	}

	var be *backend
	switch storage {
	case config.StoragePostgres:
		be, err = openPostgres(c, migrate)
		if err != nil {
			return nil, err
		}
	default:
		dir := memory.NewDirectory()
		be = &backend{
			storage:   storage,
			tasks:     memory.NewTaskStore(),
			history:   memory.NewHistoryStore(),
			directory: dir,
			writer:    memoryDirectoryWriter{dir: dir},
		}
		slog.Warn("using in-memory storage; data is lost on exit")
	}

	if path := c.String("directory-file"); path != "" {
		if err := importDirectory(ctx, path, be.writer); err != nil {
			be.Close()
			return nil, err
		}
	}
	return be, nil
}

func openPostgres(c *cli.Context, migrate bool) (*backend, error) {
	ctx := c.Context

	databaseURL := c.String("database-url")
	if databaseURL == "" {
		return nil, errors.New("database-url is required with postgres storage")
	}

	db, err := database.New(ctx, databaseURL, database.PoolOptions{MaxConns: int32(c.Int("db-max-conns"))})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if migrate {
		if _, err := database.RunMigrations(ctx, db.Pool()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	directory := repository.NewDirectoryRepository(db.Pool())
	return &backend{
		storage:   config.StoragePostgres,
		tasks:     repository.NewTaskRepository(db.Pool()),
		history:   repository.NewHistoryRepository(db.Pool()),
		directory: directory,
		writer:    directory,
		db:        db,
	}, nil
}

// Ping reports whether the store is reachable. Memory storage always is.
func (b *backend) Ping(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.Ping(ctx)
}

// Close releases the database pool, if any.
func (b *backend) Close() {
	if b.db != nil {
		b.db.Close()
	}
}

// coordinator builds the transition coordinator from the global flags.
func (b *backend) coordinator(c *cli.Context, opts ...service.Option) (*service.Coordinator, error) {
	policy, err := workflow.Resolve(c.String("policy"))
	if err != nil {
		return nil, fmt.Errorf("load workflow policy: %w", err)
	}

	base := []service.Option{
		service.WithPolicy(policy),
		service.WithStrictConcurrency(c.Bool("strict-concurrency")),
		service.WithStoreTimeout(c.Duration("store-timeout")),
		service.WithSideEffectTimeout(c.Duration("side-effect-timeout")),
		service.WithLogger(slog.Default()),
	}
	return service.NewCoordinator(b.tasks, b.history, b.directory, append(base, opts...)...), nil
}

// importDirectory upserts every employee before any project so managers exist.
func importDirectory(ctx context.Context, path string, w directoryWriter) error {
	file, err := config.LoadDirectory(path)
	if err != nil {
		return err
	}

	for _, e := range file.DomainEmployees() {
		if err := w.UpsertEmployee(ctx, e); err != nil {
			return fmt.Errorf("import employee %s: %w", e.ID, err)
		}
	}
	for _, p := range file.DomainProjects() {
		if err := w.UpsertProject(ctx, p); err != nil {
			return fmt.Errorf("import project %s: %w", p.ID, err)
		}
	}

	slog.Info("directory imported",
		"path", path,
		"employees", len(file.Employees),
		"projects", len(file.Projects),
	)
	return nil
}
