package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asanalytics/go-asana-reporter/internal/asana"
	"github.com/asanalytics/go-asana-reporter/internal/model"
	"github.com/asanalytics/go-asana-reporter/internal/repository"
	"github.com/asanalytics/go-asana-reporter/internal/slack"
)

// TaskSource is the slice of the Asana client the jobs consume.
type TaskSource interface {
	Projects(ctx context.Context) ([]asana.Project, error)
	TasksByProject(ctx context.Context, projectGID string, completedSince time.Time) ([]asana.Task, error)
	OpenTasks(ctx context.Context, projectGID string) ([]asana.Task, error)
	Subtasks(ctx context.Context, taskGID string) ([]asana.Task, error)
}

// TaskStore persists completed task records.
type TaskStore interface {
	UpsertTask(ctx context.Context, t *model.TaskRecord) (repository.UpsertOutcome, error)
}

// SnapshotStore appends open-task snapshot rows.
type SnapshotStore interface {
	InsertSnapshots(ctx context.Context, snapshots []model.OpenTaskSnapshot) error
}

// RunStore records one row per finished job run.
type RunStore interface {
	CreateRunHistory(ctx context.Context, h *model.RunHistory) error
}

// finishRun stamps the summary, persists it and notifies. History write and
// notification failures never change the run outcome.
func finishRun(ctx context.Context, runs RunStore, notifier *slack.Notifier, log *logrus.Logger, summary *model.RunSummary, now func() time.Time) {
	summary.FinishedAt = now()

	details, err := json.Marshal(summary)
	if err != nil {
		details = nil
	}
	history := &model.RunHistory{
		RunID:      summary.RunID,
		Job:        summary.Job,
		Status:     summary.Status,
		DurationMs: summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
		Details:    details,
	}
	if runs != nil {
		if err := runs.CreateRunHistory(ctx, history); err != nil {
			log.WithError(err).Warn("run history write failed")
		}
	}
	notifier.NotifyRun(ctx, *summary)
}

// dateOnly truncates t to UTC midnight. Stored dates always compare equal to
// what the database hands back.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
