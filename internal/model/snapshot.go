package model

import "time"

// OpenTaskSnapshot is one append-only row per open task per snapshot run.
// Rows are never updated or deduplicated; the history is the point.
type OpenTaskSnapshot struct {
	ID           int64      `json:"id,omitempty"`
	SnapshotDate time.Time  `json:"snapshot_date"`
	TaskID       string     `json:"task_id"`
	ProjectName  string     `json:"project_name"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Status       string     `json:"status"`
}
