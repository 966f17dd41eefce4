package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/asanalytics/go-asana-reporter/internal/model"
	"github.com/asanalytics/go-asana-reporter/internal/slack"
)

// ReportSource yields aggregated rows for one dimension.
type ReportSource interface {
	Rows(ctx context.Context, dim model.Dimension) ([]model.ReportRow, error)
}

// TabWriter writes one dimension's rows as per-month spreadsheet tabs.
type TabWriter interface {
	Write(ctx context.Context, dim model.Dimension, rows []model.ReportRow) []model.TabResult
}

// ExportService recomputes the reports and pushes them to the spreadsheet.
// Tab failures degrade the run to partial; only a store read failure aborts.
type ExportService struct {
	reports  ReportSource
	exporter TabWriter
	runs     RunStore
	notifier *slack.Notifier
	log      *logrus.Logger
	now      func() time.Time
}

func NewExportService(reports ReportSource, exporter TabWriter, runs RunStore, notifier *slack.Notifier, log *logrus.Logger) *ExportService {
	return &ExportService{
		reports:  reports,
		exporter: exporter,
		runs:     runs,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Run exports the given dimensions, or all of them when dims is empty.
func (s *ExportService) Run(ctx context.Context, dims []model.Dimension) (*model.RunSummary, error) {
	if len(dims) == 0 {
		dims = model.Dimensions()
	}

	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		Job:       "export",
		StartedAt: s.now(),
	}
	defer finishRun(ctx, s.runs, s.notifier, s.log, summary, s.now)

	for _, dim := range dims {
		rows, err := s.reports.Rows(ctx, dim)
		if err != nil {
			summary.Status = model.RunFailure
			summary.Error = err.Error()
			return summary, errors.Wrapf(err, "aggregate %s report", dim)
		}
		if len(rows) == 0 {
			s.log.WithField("dimension", dim).Info("no rows to export")
			continue
		}

		for _, tab := range s.exporter.Write(ctx, dim, rows) {
			summary.Tabs = append(summary.Tabs, tab)
			if tab.OK {
				summary.Processed++
			} else {
				summary.Failed++
			}
		}
	}

	switch {
	case summary.Failed == 0:
		summary.Status = model.RunSuccess
	case summary.Processed > 0:
		summary.Status = model.RunPartial
	default:
		summary.Status = model.RunFailure
		summary.Error = "every tab export failed"
	}
	s.log.WithFields(logrus.Fields{
		"run_id": summary.RunID,
		"tabs":   len(summary.Tabs),
		"failed": summary.Failed,
		"status": summary.Status,
	}).Info("export run finished")
	return summary, nil
}
