package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/asanalytics/go-asana-reporter/internal/asana"
	"github.com/asanalytics/go-asana-reporter/internal/fieldparse"
	"github.com/asanalytics/go-asana-reporter/internal/model"
	"github.com/asanalytics/go-asana-reporter/internal/repository"
	"github.com/asanalytics/go-asana-reporter/internal/slack"
)

const subtaskPrefix = "[Subtask] "

// FetchService ingests completed tasks from every workspace project into the
// task store. One unreachable project is skipped; an auth failure or a store
// write failure aborts the run.
type FetchService struct {
	source         TaskSource
	store          TaskStore
	runs           RunStore
	notifier       *slack.Notifier
	log            *logrus.Logger
	completedSince time.Time
	now            func() time.Time
}

func NewFetchService(source TaskSource, store TaskStore, runs RunStore, notifier *slack.Notifier, log *logrus.Logger, completedSince time.Time) *FetchService {
	return &FetchService{
		source:         source,
		store:          store,
		runs:           runs,
		notifier:       notifier,
		log:            log,
		completedSince: completedSince,
		now:            time.Now,
	}
}

func (s *FetchService) Run(ctx context.Context) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "fetch",
		StartedAt: s.now(),
	}
	defer finishRun(ctx, s.runs, s.notifier, s.log, summary, s.now)

	projects, err := s.source.Projects(ctx)
	if err != nil {
		summary.Status = model.RunFailure
		summary.Error = err.Error()
		return summary, errors.Wrap(err, "list projects")
	}

	var inserted, updated, unchanged int
	for _, project := range projects {
		tasks, err := s.source.TasksByProject(ctx, project.GID, s.completedSince)
		if err != nil {
			if asana.IsAuth(err) {
				summary.Status = model.RunFailure
				summary.Error = err.Error()
				return summary, errors.Wrapf(err, "fetch tasks of project %s", project.GID)
			}
			s.log.WithError(err).WithField("project", project.Name).Warn("project fetch failed, skipping")
			summary.Skipped++
			continue
		}

		for i := range tasks {
			task := &tasks[i]
			if err := s.ingestTask(ctx, task, &project, summary, &inserted, &updated, &unchanged); err != nil {
				summary.Status = model.RunFailure
				summary.Error = err.Error()
				return summary, err
			}

			if task.NumSubtasks == 0 {
				continue
			}
			subtasks, err := s.source.Subtasks(ctx, task.GID)
			if err != nil {
				if asana.IsAuth(err) {
					summary.Status = model.RunFailure
					summary.Error = err.Error()
					return summary, errors.Wrapf(err, "fetch subtasks of task %s", task.GID)
				}
				s.log.WithError(err).WithField("task", task.GID).Warn("subtask fetch failed, skipping")
				continue
			}
			for j := range subtasks {
				sub := &subtasks[j]
				sub.Name = subtaskPrefix + sub.Name
				if err := s.ingestTask(ctx, sub, &project, summary, &inserted, &updated, &unchanged); err != nil {
					summary.Status = model.RunFailure
					summary.Error = err.Error()
					return summary, err
				}
			}
		}
	}

	summary.Status = model.RunSuccess
	if summary.Skipped > 0 {
		summary.Status = model.RunPartial
	}
	s.log.WithFields(logrus.Fields{
		"run_id":    summary.RunID,
		"inserted":  inserted,
		"updated":   updated,
		"unchanged": unchanged,
		"skipped":   summary.Skipped,
	}).Info("fetch run finished")
	return summary, nil
}

// ingestTask upserts one completed task. Open tasks in the response are
// ignored here; the snapshot job owns those.
func (s *FetchService) ingestTask(ctx context.Context, task *asana.Task, project *asana.Project, summary *model.RunSummary, inserted, updated, unchanged *int) error {
	if !task.Completed || task.CompletedAt == nil {
		return nil
	}

	record, warnings := buildRecord(task, project)
	if warnings > 0 {
		summary.ParseWarnings += warnings
		s.log.WithField("task", task.GID).Warnf("%d custom field parse warning(s)", warnings)
	}

	outcome, err := s.store.UpsertTask(ctx, record)
	if err != nil {
		return errors.Wrapf(err, "store task %s", task.GID)
	}
	summary.Processed++
	switch outcome {
	case repository.Inserted:
		*inserted++
	case repository.Updated:
		*updated++
	case repository.Unchanged:
		*unchanged++
	}
	return nil
}

// buildRecord maps one completed Asana task to its stored record, deriving
// the canonical actual time from the workspace custom fields.
func buildRecord(task *asana.Task, project *asana.Project) (*model.TaskRecord, int) {
	fields := make([]fieldparse.CustomField, 0, len(task.CustomFields))
	for _, f := range task.CustomFields {
		fields = append(fields, fieldparse.CustomField{
			GID:          f.GID,
			Name:         f.Name,
			NumberValue:  f.NumberValue,
			TextValue:    f.TextValue,
			DisplayValue: f.DisplayValue,
		})
	}

	estimated := fieldparse.EstimatedTime(fields)
	parsed := fieldparse.Parse(fields, estimated)

	record := &model.TaskRecord{
		TaskID:              task.GID,
		TaskName:            task.Name,
		ProjectID:           project.GID,
		ProjectName:         project.Name,
		CompletedAt:         dateOnly(*task.CompletedAt),
		EstimatedTime:       estimated,
		TimeAchievementRate: parsed.Rate,
		ActualTimeRaw:       parsed.ActualTimeRaw,
		ActualTime:          parsed.ActualTime,
		Tags:                model.NormalizeTags(task.TagNames()),
	}
	if task.Assignee != nil {
		record.AssigneeID = task.Assignee.GID
		record.AssigneeName = task.Assignee.Name
	}
	return record, parsed.Warnings
}
