package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// DirectoryRepository reads employees and projects.
type DirectoryRepository struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// GetEmployee retrieves an employee by ID.
func (r *DirectoryRepository) GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error) {
	query, args, err := psql.
		Select("id", "name", "email", "role", "is_active", "created_at").
		From("employees").
		Where(sq.Eq{"id": employeeID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var e domain.Employee
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&e.ID,
		&e.Name,
		&e.Email,
		&e.Role,
		&e.IsActive,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("query employee: %w", err)
	}

	return &e, nil
}

// GetProject retrieves a project by ID.
func (r *DirectoryRepository) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	query, args, err := psql.
		Select("id", "code", "name", "manager_id", "created_at").
		From("projects").
		Where(sq.Eq{"id": projectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p domain.Project
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID,
		&p.Code,
		&p.Name,
		&p.ManagerID,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("query project: %w", err)
	}

	return &p, nil
}

// UpsertEmployee inserts or updates an employee. Used by seeding and tests.
func (r *DirectoryRepository) UpsertEmployee(ctx context.Context, e domain.Employee) error {
	query, args, err := psql.
		Insert("employees").
		Columns("id", "name", "email", "role", "is_active").
		Values(e.ID, e.Name, e.Email, e.Role, e.IsActive).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role, is_active = EXCLUDED.is_active").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}
	return nil
}

// UpsertProject inserts or updates a project.
func (r *DirectoryRepository) UpsertProject(ctx context.Context, p domain.Project) error {
	query, args, err := psql.
		Insert("projects").
		Columns("id", "code", "name", "manager_id").
		Values(p.ID, p.Code, p.Name, p.ManagerID).
		Suffix("ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name, manager_id = EXCLUDED.manager_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}
