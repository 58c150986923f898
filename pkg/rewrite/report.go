package rewrite

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PassRun records one execution of a pass.
type PassRun struct {
	Name     string        `json:"name"`
	Round    int           `json:"round"`
	Changed  bool          `json:"changed"`
	Duration time.Duration `json:"duration_ns"`
}

// Report summarises an Optimizer run over one graph.
type Report struct {
	Graph       string    `json:"graph"`
	Rounds      int       `json:"rounds"`
	Converged   bool      `json:"converged"`
	NodesBefore int       `json:"nodes_before"`
	NodesAfter  int       `json:"nodes_after"`
	Passes      []PassRun `json:"passes"`
}

// Changed reports whether any pass changed the graph.
func (r *Report) Changed() bool {
	for _, p := range r.Passes {
		if p.Changed {
			return true
		}
	}
	return false
}

// SaveReports writes reports as indented JSON.
func SaveReports(path string, reports []*Report) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("report marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report write: %w", err)
	}
	return nil
}

// LoadReports reads reports written by SaveReports.
func LoadReports(path string) ([]*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report read: %w", err)
	}
	var reports []*Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("report unmarshal: %w", err)
	}
	return reports, nil
}
