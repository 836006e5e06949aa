package memory

import (
	"context"
	"sync"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// Directory is an in-memory identity directory.
type Directory struct {
	mu        sync.RWMutex
	employees map[string]domain.Employee
	projects  map[string]domain.Project
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		employees: make(map[string]domain.Employee),
		projects:  make(map[string]domain.Project),
	}
}

// AddEmployee registers or replaces an employee.
func (d *Directory) AddEmployee(e domain.Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[e.ID] = e
}

// AddProject registers or replaces a project.
func (d *Directory) AddProject(p domain.Project) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.projects[p.ID] = p
}

// GetEmployee retrieves an employee by ID.
func (d *Directory) GetEmployee(_ context.Context, employeeID string) (*domain.Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.employees[employeeID]
	if !ok {
		return nil, domain.ErrEmployeeNotFound
	}
	return &e, nil
}

// GetProject retrieves a project by ID.
func (d *Directory) GetProject(_ context.Context, projectID string) (*domain.Project, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.projects[projectID]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	return &p, nil
}
