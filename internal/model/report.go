package model

import (
	"fmt"
	"time"
)

// Dimension is the grouping axis for a report.
type Dimension string

const (
	DimensionProject         Dimension = "project"
	DimensionAssignee        Dimension = "assignee"
	DimensionProjectAssignee Dimension = "project_assignee"
)

// Dimensions lists every report dimension in export order.
func Dimensions() []Dimension {
	return []Dimension{DimensionProject, DimensionAssignee, DimensionProjectAssignee}
}

// ParseDimension validates a dimension name from the API or CLI.
func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case DimensionProject, DimensionAssignee, DimensionProjectAssignee:
		return Dimension(s), nil
	}
	return "", fmt.Errorf("unknown report dimension %q", s)
}

// ReportRow is one aggregated row, recomputed on every export and never
// persisted. Month is the first day of the bucket in UTC.
type ReportRow struct {
	Month            time.Time `json:"month"`
	ProjectName      string    `json:"project_name,omitempty"`
	AssigneeName     string    `json:"assignee_name,omitempty"`
	TotalActualTime  float64   `json:"total_actual_time"`
	TaskCount        int       `json:"task_count"`
	UnestimatedCount int       `json:"unestimated_count"`
}

// TabResult is the per-tab outcome of a spreadsheet export.
type TabResult struct {
	Tab   string `json:"tab"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Run statuses reported in a RunSummary.
const (
	RunSuccess = "success"
	RunPartial = "partial"
	RunFailure = "failure"
)

// RunSummary is the structured outcome every job run terminates with.
type RunSummary struct {
	RunID         string      `json:"run_id"`
	Job           string      `json:"job"`
	Status        string      `json:"status"`
	Processed     int         `json:"processed"`
	Skipped       int         `json:"skipped"`
	Failed        int         `json:"failed"`
	ParseWarnings int         `json:"parse_warnings,omitempty"`
	Tabs          []TabResult `json:"tabs,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
	Error         string      `json:"error,omitempty"`
}
