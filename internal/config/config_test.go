package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

func TestParseStorage(t *testing.T) {
	tests := []struct {
		in      string
		want    Storage
		wantErr bool
	}{
		{"memory", StorageMemory, false},
		{" Postgres ", StoragePostgres, false},
		{"sqlite", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStorage(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitList(""))
}

func TestParseDirectory(t *testing.T) {
	data := []byte(`
employees:
  - id: e1
    name: Nguyễn Văn A
    role: Manager
  - id: e2
    name: Trần Thị B
    role: Staff
    active: false
projects:
  - id: p1
    code: P01
    name: Tower A
    manager: e1
  - id: p2
    code: P02
    name: Tower B
`)

	f, err := ParseDirectory(data)
	require.NoError(t, err)

	employees := f.DomainEmployees()
	require.Len(t, employees, 2)
	assert.True(t, employees[0].IsActive)
	assert.False(t, employees[1].IsActive)
	assert.Equal(t, domain.RoleManager, employees[0].Role)

	projects := f.DomainProjects()
	require.Len(t, projects, 2)
	assert.True(t, projects[0].IsManagedBy("e1"))
	assert.Nil(t, projects[1].ManagerID)
}

func TestParseDirectory_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown role":      "employees:\n  - {id: e1, role: Intern}\n",
		"duplicate":         "employees:\n  - {id: e1, role: Staff}\n  - {id: e1, role: Staff}\n",
		"missing id":        "employees:\n  - {role: Staff}\n",
		"unlisted manager":  "projects:\n  - {id: p1, code: P01, name: A, manager: e9}\n",
		"duplicate project": "projects:\n  - {id: p1}\n  - {id: p1}\n",
		"not yaml":          "employees: [",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDirectory([]byte(data))
			require.Error(t, err)
		})
	}
}
