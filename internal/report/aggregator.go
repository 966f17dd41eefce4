package report

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/asanalytics/go-asana-reporter/internal/model"
)

// CompletedTaskLister is the slice of the store the aggregator needs.
type CompletedTaskLister interface {
	ListCompletedTasks(ctx context.Context) ([]model.TaskRecord, error)
}

// Aggregator groups stored task records into monthly report rows.
type Aggregator struct {
	store CompletedTaskLister
}

func NewAggregator(store CompletedTaskLister) *Aggregator {
	return &Aggregator{store: store}
}

// Rows loads every completed task and aggregates it along dim.
func (a *Aggregator) Rows(ctx context.Context, dim model.Dimension) ([]model.ReportRow, error) {
	tasks, err := a.store.ListCompletedTasks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate report rows")
	}
	return Aggregate(tasks, dim), nil
}

type groupKey struct {
	month    time.Time
	project  string
	assignee string
}

// Aggregate groups tasks by completion month and the requested dimension.
// A task without a derived actual time still counts toward TaskCount and
// UnestimatedCount; only the hour sum skips it. Tasks with no assignee name
// are left out of the assignee dimensions entirely.
func Aggregate(tasks []model.TaskRecord, dim model.Dimension) []model.ReportRow {
	groups := make(map[groupKey]*model.ReportRow)

	for i := range tasks {
		t := &tasks[i]

		key := groupKey{month: monthOf(t.CompletedAt)}
		switch dim {
		case model.DimensionProject:
			key.project = t.ProjectName
		case model.DimensionAssignee:
			if t.AssigneeName == "" {
				continue
			}
			key.assignee = t.AssigneeName
		case model.DimensionProjectAssignee:
			if t.AssigneeName == "" {
				continue
			}
			key.project = t.ProjectName
			key.assignee = t.AssigneeName
		}

		row, ok := groups[key]
		if !ok {
			row = &model.ReportRow{
				Month:        key.month,
				ProjectName:  key.project,
				AssigneeName: key.assignee,
			}
			groups[key] = row
		}

		row.TaskCount++
		if t.Unestimated() {
			row.UnestimatedCount++
		} else {
			row.TotalActualTime += *t.ActualTime
		}
	}

	out := make([]model.ReportRow, 0, len(groups))
	for _, row := range groups {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Month.Equal(out[j].Month) {
			return out[i].Month.Before(out[j].Month)
		}
		if out[i].ProjectName != out[j].ProjectName {
			return out[i].ProjectName < out[j].ProjectName
		}
		return out[i].AssigneeName < out[j].AssigneeName
	})
	return out
}

func monthOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
