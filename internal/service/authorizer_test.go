package service_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/repository/memory"
	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/service"
)

func TestAuthorizer_Rules(t *testing.T) {
	tasks := memory.NewTaskStore()
	dir := memory.NewDirectory()
	manager := "m"
	dir.AddProject(domain.Project{ID: "p", ManagerID: &manager})
	for _, e := range []domain.Employee{
		{ID: "a", Role: domain.RoleStaff, IsActive: true},
		{ID: "m", Role: domain.RoleManager, IsActive: true},
		{ID: "d", Role: domain.RoleDirector, IsActive: true},
		{ID: "admin", Role: domain.RoleAdmin, IsActive: true},
		{ID: "s", Role: domain.RoleStaff, IsActive: true},
		{ID: "other-manager", Role: domain.RoleManager, IsActive: true},
		{ID: "retired", Role: domain.RoleDirector, IsActive: false},
	} {
		dir.AddEmployee(e)
	}
	assignee := "a"
	task := tasks.Seed(&domain.Task{ProjectID: "p", Status: domain.TaskStatusOpen, AssigneeID: &assignee})
	orphan := tasks.Seed(&domain.Task{ProjectID: "missing-project", Status: domain.TaskStatusOpen})

	authz := service.NewAuthorizer(tasks, dir)
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   string
		taskID  string
		allowed bool
		reason  string
	}{
		{"assignee", "a", task.ID, true, "assignee"},
		{"project manager", "m", task.ID, true, "manages"},
		{"director", "d", task.ID, true, "Director"},
		{"admin", "admin", task.ID, true, "Admin"},
		{"unrelated staff", "s", task.ID, false, "not the assignee"},
		{"manager of another project", "other-manager", task.ID, false, "not the assignee"},
		{"inactive director", "retired", task.ID, false, "inactive"},
		{"unknown actor", "ghost", task.ID, false, "unavailable"},
		{"empty actor", "", task.ID, false, "no actor"},
		{"unknown task", "d", "missing", false, "unavailable"},
		{"project lookup fails", "d", orphan.ID, false, "project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := authz.Evaluate(ctx, tt.actor, tt.taskID)
			assert.Equal(t, tt.allowed, decision.Allowed)
			assert.Contains(t, decision.Reason, tt.reason)
			assert.Equal(t, tt.allowed, authz.CanTransition(ctx, tt.actor, tt.taskID))
		})
	}
}

func TestAuthorizer_RandomizedFixtures(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 2026))
	roles := []domain.Role{domain.RoleAdmin, domain.RoleDirector, domain.RoleManager, domain.RoleStaff}
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		tasks := memory.NewTaskStore()
		dir := memory.NewDirectory()

		employees := make([]domain.Employee, 8)
		for i := range employees {
			employees[i] = domain.Employee{
				ID:       fmt.Sprintf("e%d", i),
				Role:     roles[rng.IntN(len(roles))],
				IsActive: true,
			}
			dir.AddEmployee(employees[i])
		}

		projects := make([]domain.Project, 3)
		for i := range projects {
			projects[i] = domain.Project{ID: fmt.Sprintf("p%d", i)}
			if rng.IntN(4) > 0 {
				id := employees[rng.IntN(len(employees))].ID
				projects[i].ManagerID = &id
			}
			dir.AddProject(projects[i])
		}

		var seeded []*domain.Task
		for i := 0; i < 6; i++ {
			task := &domain.Task{
				ProjectID: projects[rng.IntN(len(projects))].ID,
				Status:    domain.Statuses[rng.IntN(len(domain.Statuses))],
			}
			if rng.IntN(3) > 0 {
				id := employees[rng.IntN(len(employees))].ID
				task.AssigneeID = &id
			}
			seeded = append(seeded, tasks.Seed(task))
		}

		authz := service.NewAuthorizer(tasks, dir)
		for _, task := range seeded {
			project, err := dir.GetProject(ctx, task.ProjectID)
			require.NoError(t, err)
			for _, actor := range employees {
				want := task.IsAssignedTo(actor.ID) || project.IsManagedBy(actor.ID) || actor.Role.IsElevated()
				assert.Equal(t, want, authz.CanTransition(ctx, actor.ID, task.ID),
					"round %d actor %s (%s) task %s", round, actor.ID, actor.Role, task.ID)
			}
		}
	}
}

func TestDirectoryAccess(t *testing.T) {
	dir := memory.NewDirectory()
	dir.AddEmployee(domain.Employee{ID: "on", IsActive: true, Role: domain.RoleStaff})
	dir.AddEmployee(domain.Employee{ID: "off", IsActive: false, Role: domain.RoleAdmin})
	access := service.NewDirectoryAccess(dir)

	assert.True(t, access.CanEdit(context.Background(), "on", nil))
	assert.False(t, access.CanEdit(context.Background(), "off", nil))
	assert.False(t, access.CanEdit(context.Background(), "ghost", nil))
	assert.False(t, access.CanEdit(context.Background(), "", nil))
}
