package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// HistoryStore is an append-only in-memory history log.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]domain.HistoryEntry
	now     func() time.Time
}

// NewHistoryStore creates an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		entries: make(map[string][]domain.HistoryEntry),
		now:     time.Now,
	}
}

// Append stores an entry and fills its ID and timestamp.
func (s *HistoryStore) Append(_ context.Context, entry *domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.CreatedAt = s.now()
	s.entries[entry.TaskID] = append(s.entries[entry.TaskID], *entry)
	return nil
}

// ListByTaskID returns entries of a task, newest first.
func (s *HistoryStore) ListByTaskID(_ context.Context, taskID string) ([]*domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.entries[taskID]
	out := make([]*domain.HistoryEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		entry := stored[i]
		out = append(out, &entry)
	}
	return out, nil
}

// Len returns the number of entries stored for a task.
func (s *HistoryStore) Len(taskID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[taskID])
}
