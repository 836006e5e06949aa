package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// DirectoryFile is a YAML seed of employees and projects.
//
//	employees:
//	  - id: e1
//	    name: Nguyễn Văn A
//	    role: Manager
//	projects:
//	  - id: p1
//	    code: P01
//	    name: Tower A
//	    manager: e1
type DirectoryFile struct {
	Employees []EmployeeEntry `yaml:"employees"`
	Projects  []ProjectEntry  `yaml:"projects"`
}

// EmployeeEntry is one employee of a DirectoryFile. Active defaults to true.
type EmployeeEntry struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Email  string `yaml:"email,omitempty"`
	Role   string `yaml:"role"`
	Active *bool  `yaml:"active,omitempty"`
}

// ProjectEntry is one project of a DirectoryFile.
type ProjectEntry struct {
	ID      string `yaml:"id"`
	Code    string `yaml:"code"`
	Name    string `yaml:"name"`
	Manager string `yaml:"manager,omitempty"`
}

// LoadDirectory reads and validates a directory seed file.
func LoadDirectory(path string) (*DirectoryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	return ParseDirectory(data)
}

// ParseDirectory decodes a directory seed. Unknown roles, duplicate ids and
// managers missing from the file are rejected.
func ParseDirectory(data []byte) (*DirectoryFile, error) {
	var f DirectoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}

	employees := make(map[string]bool, len(f.Employees))
	for i, e := range f.Employees {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: employee #%d has no id", domain.ErrValidation, i+1)
		}
		if employees[e.ID] {
			return nil, fmt.Errorf("%w: duplicate employee %q", domain.ErrValidation, e.ID)
		}
		if !domain.Role(e.Role).IsValid() {
			return nil, fmt.Errorf("%w: employee %q has unknown role %q", domain.ErrValidation, e.ID, e.Role)
		}
		employees[e.ID] = true
	}

	projects := make(map[string]bool, len(f.Projects))
	for i, p := range f.Projects {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: project #%d has no id", domain.ErrValidation, i+1)
		}
		if projects[p.ID] {
			return nil, fmt.Errorf("%w: duplicate project %q", domain.ErrValidation, p.ID)
		}
		if p.Manager != "" && !employees[p.Manager] {
			return nil, fmt.Errorf("%w: project %q manager %q is not listed", domain.ErrValidation, p.ID, p.Manager)
		}
		projects[p.ID] = true
	}

	return &f, nil
}

// DomainEmployees converts the employee entries.
func (f *DirectoryFile) DomainEmployees() []domain.Employee {
	out := make([]domain.Employee, 0, len(f.Employees))
	for _, e := range f.Employees {
		active := e.Active == nil || *e.Active
		out = append(out, domain.Employee{
			ID:       e.ID,
			Name:     e.Name,
			Email:    e.Email,
			Role:     domain.Role(e.Role),
			IsActive: active,
		})
	}
	return out
}

// DomainProjects converts the project entries.
func (f *DirectoryFile) DomainProjects() []domain.Project {
	out := make([]domain.Project, 0, len(f.Projects))
	for _, p := range f.Projects {
		project := domain.Project{ID: p.ID, Code: p.Code, Name: p.Name}
		if p.Manager != "" {
			manager := p.Manager
			project.ManagerID = &manager
		}
		out = append(out, project)
	}
	return out
}
