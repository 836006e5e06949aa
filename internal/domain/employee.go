package domain

import "time"

// Role is an organization-wide role of an employee.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleDirector Role = "Director"
	RoleManager  Role = "Manager"
	RoleStaff    Role = "Staff"
)

// IsElevated returns true for roles allowed to move any task.
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleDirector
}

// IsValid checks if the role is one of the allowed values.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDirector, RoleManager, RoleStaff:
		return true
	default:
		return false
	}
}

// Employee is an actor known to the identity directory.
type Employee struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	IsActive  bool
	CreatedAt time.Time
}

// Project owns tasks and designates a manager.
type Project struct {
	ID        string
	Code      string
	Name      string
	ManagerID *string
	CreatedAt time.Time
}

// IsManagedBy checks if the project is managed by the given employee.
func (p *Project) IsManagedBy(employeeID string) bool {
	return p.ManagerID != nil && *p.ManagerID == employeeID
}
