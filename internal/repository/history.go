package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// HistoryRepository handles database operations for task history.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Append inserts an entry and fills its ID and CreatedAt.
func (r *HistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	query, args, err := psql.
		Insert("task_history").
		Columns("task_id", "field", "old_value", "new_value", "actor_id", "notes").
		Values(entry.TaskID, entry.Field, entry.OldValue, entry.NewValue, entry.ActorID, entry.Notes).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("create history entry: %w", err)
	}
	return nil
}

// ListByTaskID retrieves all entries of a task, newest first.
func (r *HistoryRepository) ListByTaskID(ctx context.Context, taskID string) ([]*domain.HistoryEntry, error) {
	if validTaskID(taskID) != nil {
		return []*domain.HistoryEntry{}, nil
	}

	query, args, err := psql.
		Select("id", "task_id", "field", "old_value", "new_value", "actor_id", "notes", "created_at").
		From("task_history").
		Where(sq.Eq{"task_id": taskID}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query task history: %w", err)
	}
	defer rows.Close()

	entries := []*domain.HistoryEntry{}
	for rows.Next() {
		var entry domain.HistoryEntry
		err := rows.Scan(
			&entry.ID,
			&entry.TaskID,
			&entry.Field,
			&entry.OldValue,
			&entry.NewValue,
			&entry.ActorID,
			&entry.Notes,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}
