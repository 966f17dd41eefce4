package model

import (
	"sort"
	"time"
)

// TaskRecord is one completed task as stored in the tasks table.
// ActualTime is always derived from EstimatedTime, TimeAchievementRate and
// ActualTimeRaw by fieldparse; it is never set independently.
type TaskRecord struct {
	TaskID              string    `json:"task_id"`
	TaskName            string    `json:"task_name"`
	ProjectID           string    `json:"project_id"`
	ProjectName         string    `json:"project_name"`
	AssigneeID          string    `json:"assignee_id,omitempty"`
	AssigneeName        string    `json:"assignee_name,omitempty"`
	CompletedAt         time.Time `json:"completed_at"`
	EstimatedTime       *float64  `json:"estimated_time,omitempty"`
	TimeAchievementRate *float64  `json:"time_achievement_rate,omitempty"`
	ActualTimeRaw       *float64  `json:"actual_time_raw,omitempty"`
	ActualTime          *float64  `json:"actual_time,omitempty"`
	Tags                []string  `json:"tags,omitempty"`
	InsertedAt          time.Time `json:"inserted_at"`
}

// Unestimated reports whether the task carries no usable actual time and
// should be counted separately during aggregation.
func (t *TaskRecord) Unestimated() bool {
	return t.ActualTime == nil
}

// Equal compares all tracked fields against other. InsertedAt is excluded:
// it is refreshed by the store only when Equal is false.
func (t *TaskRecord) Equal(other *TaskRecord) bool {
	if other == nil {
		return false
	}
	if t.TaskID != other.TaskID ||
		t.TaskName != other.TaskName ||
		t.ProjectID != other.ProjectID ||
		t.ProjectName != other.ProjectName ||
		t.AssigneeID != other.AssigneeID ||
		t.AssigneeName != other.AssigneeName {
		return false
	}
	if !t.CompletedAt.Equal(other.CompletedAt) {
		return false
	}
	if !floatPtrEqual(t.EstimatedTime, other.EstimatedTime) ||
		!floatPtrEqual(t.TimeAchievementRate, other.TimeAchievementRate) ||
		!floatPtrEqual(t.ActualTimeRaw, other.ActualTimeRaw) ||
		!floatPtrEqual(t.ActualTime, other.ActualTime) {
		return false
	}
	return tagsEqual(NormalizeTags(t.Tags), NormalizeTags(other.Tags))
}

// NormalizeTags returns a sorted, deduplicated copy so two records with the
// same tag set always compare and store identically.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func tagsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
