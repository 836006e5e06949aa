package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

func TestTaskStatus_IsValid(t *testing.T) {
	assert.Len(t, domain.Statuses, 12)
	for i, s := range domain.Statuses {
		assert.True(t, s.IsValid(), s)
		assert.Equal(t, i, s.Index())
	}
	assert.False(t, domain.TaskStatus("S7 Unknown").IsValid())
	assert.False(t, domain.TaskStatus("").IsValid())
	assert.True(t, domain.TaskStatusCompleted.IsTerminal())
	assert.True(t, domain.TaskStatusPending.IsEntry())
}

func TestTaskPriority_Label(t *testing.T) {
	assert.Equal(t, "Khẩn cấp", domain.TaskPriorityCritical.Label())
	assert.Equal(t, "Cao", domain.TaskPriorityHigh.Label())
	assert.Equal(t, "Trung bình", domain.TaskPriorityMedium.Label())
	assert.Equal(t, "Thấp", domain.TaskPriorityLow.Label())
	assert.Less(t, domain.TaskPriorityCritical.Rank(), domain.TaskPriorityLow.Rank())
	assert.False(t, domain.TaskPriority("Urgent").IsValid())
}

func TestClampProgress(t *testing.T) {
	assert.Equal(t, 0, domain.ClampProgress(-5))
	assert.Equal(t, 42, domain.ClampProgress(42))
	assert.Equal(t, 100, domain.ClampProgress(140))
}

func TestTask_CloneDoesNotAlias(t *testing.T) {
	assignee := "emp-1"
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	task := &domain.Task{ID: "t1", AssigneeID: &assignee, DueDate: &due, Tags: []string{"bim"}}

	c := task.Clone()
	*c.AssigneeID = "emp-2"
	c.Tags[0] = "mep"
	*c.DueDate = due.Add(24 * time.Hour)

	assert.Equal(t, "emp-1", *task.AssigneeID)
	assert.Equal(t, "bim", task.Tags[0])
	assert.Equal(t, due, *task.DueDate)
	assert.True(t, task.IsAssignedTo("emp-1"))
}

func TestErrStaleState_IsNoOpFamily(t *testing.T) {
	assert.ErrorIs(t, domain.ErrStaleState, domain.ErrNoOpOrStaleState)
	assert.True(t, domain.IsNotFound(domain.ErrProjectNotFound))
	assert.False(t, domain.IsNotFound(domain.ErrPermissionDenied))
}
