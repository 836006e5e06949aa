// Package board keeps Kanban views of a project's tasks, one column per status.
package board

import (
	"slices"
	"strings"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// Columns maps every status to its ordered tasks.
type Columns map[domain.TaskStatus][]*domain.Task

// Count returns the number of tasks on the board.
func (c Columns) Count() int {
	n := 0
	for _, tasks := range c {
		n += len(tasks)
	}
	return n
}

// GroupByStatus builds board columns. Every status has a key, soft-deleted
// tasks are dropped and each column is ordered by priority, due date (unset
// last) and code.
func GroupByStatus(tasks []*domain.Task) Columns {
	columns := make(Columns, len(domain.Statuses))
	for _, status := range domain.Statuses {
		columns[status] = []*domain.Task{}
	}

	for _, task := range tasks {
		if task == nil || task.IsDeleted() {
			continue
		}
		if _, ok := columns[task.Status]; !ok {
			continue
		}
		columns[task.Status] = append(columns[task.Status], task)
	}

	for _, column := range columns {
		slices.SortStableFunc(column, compareCards)
	}
	return columns
}

func compareCards(a, b *domain.Task) int {
	if c := a.Priority.Rank() - b.Priority.Rank(); c != 0 {
		return c
	}
	switch {
	case a.DueDate == nil && b.DueDate != nil:
		return 1
	case a.DueDate != nil && b.DueDate == nil:
		return -1
	case a.DueDate != nil && b.DueDate != nil:
		if c := a.DueDate.Compare(*b.DueDate); c != 0 {
			return c
		}
	}
	return strings.Compare(a.Code, b.Code)
}
