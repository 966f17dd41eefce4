package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/asanalytics/go-asana-reporter/internal/asana"
	"github.com/asanalytics/go-asana-reporter/internal/model"
	"github.com/asanalytics/go-asana-reporter/internal/slack"
)

// SnapshotService appends one row per currently-open task. Every run adds
// rows; nothing is ever rewritten, so the table is a day-by-day history of
// the open backlog.
type SnapshotService struct {
	source   TaskSource
	store    SnapshotStore
	runs     RunStore
	notifier *slack.Notifier
	log      *logrus.Logger
	now      func() time.Time
}

func NewSnapshotService(source TaskSource, store SnapshotStore, runs RunStore, notifier *slack.Notifier, log *logrus.Logger) *SnapshotService {
	return &SnapshotService{
		source:   source,
		store:    store,
		runs:     runs,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func (s *SnapshotService) Run(ctx context.Context) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "snapshot",
		StartedAt: s.now(),
	}
	defer finishRun(ctx, s.runs, s.notifier, s.log, summary, s.now)

	projects, err := s.source.Projects(ctx)
	if err != nil {
		summary.Status = model.RunFailure
		summary.Error = err.Error()
		return summary, errors.Wrap(err, "list projects")
	}

	snapshotDate := dateOnly(s.now())
	var snapshots []model.OpenTaskSnapshot
	for _, project := range projects {
		tasks, err := s.source.OpenTasks(ctx, project.GID)
		if err != nil {
			if asana.IsAuth(err) {
				summary.Status = model.RunFailure
				summary.Error = err.Error()
				return summary, errors.Wrapf(err, "fetch open tasks of project %s", project.GID)
			}
			s.log.WithError(err).WithField("project", project.Name).Warn("open task fetch failed, skipping")
			summary.Skipped++
			continue
		}

		for i := range tasks {
			task := &tasks[i]
			if task.Completed {
				continue
			}
			snapshots = append(snapshots, snapshotOf(task, project.Name, snapshotDate))
		}
	}

	if err := s.store.InsertSnapshots(ctx, snapshots); err != nil {
		summary.Status = model.RunFailure
		summary.Error = err.Error()
		return summary, errors.Wrap(err, "insert snapshots")
	}
	summary.Processed = len(snapshots)

	summary.Status = model.RunSuccess
	if summary.Skipped > 0 {
		summary.Status = model.RunPartial
	}
	s.log.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"snapshots": len(snapshots),
		"skipped":   summary.Skipped,
	}).Info("snapshot run finished")
	return summary, nil
}

func snapshotOf(task *asana.Task, projectName string, snapshotDate time.Time) model.OpenTaskSnapshot {
	snap := model.OpenTaskSnapshot{
		SnapshotDate: snapshotDate,
		TaskID:       task.GID,
		ProjectName:  projectName,
		Status:       task.SectionName(),
	}
	if snap.Status == "" {
		snap.Status = "open"
	}
	if task.Assignee != nil {
		snap.AssigneeName = task.Assignee.Name
	}
	if task.DueOn != "" {
		if due, err := time.Parse("2006-01-02", task.DueOn); err == nil {
			snap.DueDate = &due
		}
	}
	return snap
}
