package asana

import "time"

// Project is one Asana project in the configured workspace.
type Project struct {
	GID      string `json:"gid"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// Assignee is the task assignee as returned inline on a task.
type Assignee struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Tag is one workspace tag attached to a task.
type Tag struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// CustomField carries the raw per-workspace field values. Asana reports the
// value under number_value/text_value/display_value depending on field type.
type CustomField struct {
	GID          string   `json:"gid"`
	Name         string   `json:"name"`
	NumberValue  *float64 `json:"number_value"`
	TextValue    string   `json:"text_value"`
	DisplayValue string   `json:"display_value"`
}

// NamedResource is a compact gid+name reference used inside memberships.
type NamedResource struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Membership places a task on a board section within a project.
type Membership struct {
	Project *NamedResource `json:"project"`
	Section *NamedResource `json:"section"`
}

// Task is one task as returned by the tasks endpoints with our opt_fields.
type Task struct {
	GID          string        `json:"gid"`
	Name         string        `json:"name"`
	Completed    bool          `json:"completed"`
	CompletedAt  *time.Time    `json:"completed_at"`
	CreatedAt    *time.Time    `json:"created_at"`
	ModifiedAt   *time.Time    `json:"modified_at"`
	DueOn        string        `json:"due_on"`
	NumSubtasks  int           `json:"num_subtasks"`
	Assignee     *Assignee     `json:"assignee"`
	Tags         []Tag         `json:"tags"`
	Memberships  []Membership  `json:"memberships"`
	CustomFields []CustomField `json:"custom_fields"`
}

// SectionName returns the first board section the task sits in, or "" when
// the opt_fields did not include memberships.
func (t *Task) SectionName() string {
	for _, m := range t.Memberships {
		if m.Section != nil && m.Section.Name != "" {
			return m.Section.Name
		}
	}
	return ""
}

// TagNames flattens the tag list for storage.
func (t *Task) TagNames() []string {
	if len(t.Tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		out = append(out, tag.Name)
	}
	return out
}
