package domain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StatusTable maps normalized column titles to task statuses. It is versioned
// so a board's behaviour does not change silently when the table does.
type StatusTable struct {
	Version int                   `yaml:"version" json:"version"`
	Rules   map[string]TaskStatus `yaml:"rules" json:"rules"`
}

// DefaultStatusTable is version 1 of the title table.
func DefaultStatusTable() StatusTable {
	return StatusTable{
		Version: 1,
		Rules: map[string]TaskStatus{
			"to do":       StatusTodo,
			"todo":        StatusTodo,
			"backlog":     StatusTodo,
			"in progress": StatusInProgress,
			"doing":       StatusInProgress,
			"review":      StatusReview,
			"in review":   StatusReview,
			"qa":          StatusReview,
			"done":        StatusDone,
			"completed":   StatusDone,
		},
	}
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Resolve returns the status a task takes on entering col. An explicit
// column mapping wins over the title table; ok is false when neither applies.
func (t StatusTable) Resolve(col Column) (TaskStatus, bool) {
	if col.MappedStatus != nil && col.MappedStatus.Mappable() {
		return *col.MappedStatus, true
	}
	s, ok := t.Rules[normalizeTitle(col.Title)]
	return s, ok
}

// LoadStatusTable reads a YAML table:
//
//	version: 2
//	rules:
//	  to do: todo
//	  doing: in-progress
func LoadStatusTable(path string) (StatusTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return StatusTable{}, fmt.Errorf("read status table: %w", err)
	}
	var raw StatusTable
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return StatusTable{}, fmt.Errorf("parse status table: %w", err)
	}
	if raw.Version < 1 {
		return StatusTable{}, fmt.Errorf("status table %s: version must be >= 1", path)
	}

	out := StatusTable{Version: raw.Version, Rules: make(map[string]TaskStatus, len(raw.Rules))}
	for title, s := range raw.Rules {
		if !s.Mappable() {
			return StatusTable{}, fmt.Errorf("status table %s: %q maps to unknown status %q", path, title, s)
		}
		out.Rules[normalizeTitle(title)] = s
	}
	return out, nil
}
