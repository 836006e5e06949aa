// Package workflow holds the legality table for task status transitions.
// The coordinator consults a Policy before authorization, so a stricter
// workflow can be swapped in without touching the transition path.
package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anhnq-lab/cic-ttb-erp--sub001/internal/domain"
)

// Policy decides whether a status pair is a legal move.
type Policy interface {
	Name() string
	Allow(from, to domain.TaskStatus) error
}

type permissive struct{}

// Permissive allows any move between distinct valid statuses.
func Permissive() Policy { return permissive{} }

func (permissive) Name() string { return "permissive" }

func (permissive) Allow(from, to domain.TaskStatus) error {
	return checkPair(from, to)
}

type linear struct{}

// Linear allows a single step forward, any bounce backwards and keeps
// Completed locked.
func Linear() Policy { return linear{} }

func (linear) Name() string { return "linear" }

func (linear) Allow(from, to domain.TaskStatus) error {
	if err := checkPair(from, to); err != nil {
		return err
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is locked", domain.ErrInvalidTransition, from)
	}
	if to.Index() > from.Index()+1 {
		return fmt.Errorf("%w: %s -> %s skips stages", domain.ErrInvalidTransition, from, to)
	}
	return nil
}

// Table is an explicit adjacency list of allowed targets per status.
type Table struct {
	name    string
	allowed map[domain.TaskStatus]map[domain.TaskStatus]bool
	locked  map[domain.TaskStatus]bool
}

// Name returns the table name from the policy file.
func (t *Table) Name() string { return t.name }

// Allow checks the pair against the table.
func (t *Table) Allow(from, to domain.TaskStatus) error {
	if err := checkPair(from, to); err != nil {
		return err
	}
	if t.locked[from] {
		return fmt.Errorf("%w: %s is locked", domain.ErrInvalidTransition, from)
	}
	targets, ok := t.allowed[from]
	if !ok {
		// Statuses without an entry keep the permissive behavior.
		return nil
	}
	if !targets[to] {
		return fmt.Errorf("%w: %s -> %s is not allowed by policy %s", domain.ErrInvalidTransition, from, to, t.name)
	}
	return nil
}

// policyFile models the YAML policy document.
type policyFile struct {
	Version     int                 `yaml:"version"`
	Name        string              `yaml:"name"`
	Transitions map[string][]string `yaml:"transitions"`
	Locked      []string            `yaml:"locked,omitempty"`
}

// ParsePolicy builds a Table from a YAML document.
func ParsePolicy(data []byte) (*Table, error) {
	var doc policyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if doc.Name == "" {
		doc.Name = "custom"
	}

	table := &Table{
		name:    doc.Name,
		allowed: make(map[domain.TaskStatus]map[domain.TaskStatus]bool, len(doc.Transitions)),
		locked:  make(map[domain.TaskStatus]bool, len(doc.Locked)),
	}
	for rawFrom, rawTargets := range doc.Transitions {
		from := domain.TaskStatus(rawFrom)
		if !from.IsValid() {
			return nil, fmt.Errorf("%w: %q in transitions", domain.ErrInvalidStatus, rawFrom)
		}
		targets := make(map[domain.TaskStatus]bool, len(rawTargets))
		for _, rawTo := range rawTargets {
			to := domain.TaskStatus(rawTo)
			if !to.IsValid() {
				return nil, fmt.Errorf("%w: %q listed under %q", domain.ErrInvalidStatus, rawTo, rawFrom)
			}
			targets[to] = true
		}
		table.allowed[from] = targets
	}
	for _, raw := range doc.Locked {
		status := domain.TaskStatus(raw)
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: %q in locked", domain.ErrInvalidStatus, raw)
		}
		table.locked[status] = true
	}
	return table, nil
}

// LoadPolicy reads a YAML policy file from disk.
func LoadPolicy(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// Resolve maps a policy flag value to a Policy. Anything that is not a
// built-in name is treated as a path to a YAML file.
func Resolve(value string) (Policy, error) {
	switch value {
	case "", "permissive":
		return Permissive(), nil
	case "linear":
		return Linear(), nil
	default:
		table, err := LoadPolicy(value)
		if err != nil {
			return nil, err
		}
		return table, nil
	}
}

func checkPair(from, to domain.TaskStatus) error {
	if !from.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, from)
	}
	if !to.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, to)
	}
	if from == to {
		return fmt.Errorf("%w: %s -> %s", domain.ErrNoOpOrStaleState, from, to)
	}
	return nil
}
