package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/asanalytics/go-asana-reporter/internal/config"
	"github.com/asanalytics/go-asana-reporter/internal/model"
)

// dimensionPrefixes name the report family a tab belongs to. A single
// spreadsheet carries all three dimensions, so the month alone would collide.
var dimensionPrefixes = map[model.Dimension]string{
	model.DimensionProject:         "プロジェクト別実績時間",
	model.DimensionAssignee:        "担当者別実績時間",
	model.DimensionProjectAssignee: "プロジェクト担当者別実績時間",
}

// MonthTabName renders a month as its Japanese label, e.g. "2024年3月".
func MonthTabName(month time.Time) string {
	return fmt.Sprintf("%d年%d月", month.Year(), int(month.Month()))
}

// TabTitle is the full tab name for one dimension and month.
func TabTitle(dim model.Dimension, month time.Time) string {
	return dimensionPrefixes[dim] + "_" + MonthTabName(month)
}

// tabAPI is the narrow spreadsheet surface the exporter writes through.
type tabAPI interface {
	EnsureTab(ctx context.Context, title string) error
	Overwrite(ctx context.Context, title string, values [][]interface{}) error
}

// Exporter writes monthly report tabs to one spreadsheet. Tab failures are
// collected per tab instead of aborting the export.
type Exporter struct {
	api           tabAPI
	log           *logrus.Logger
	now           func() time.Time
	retryAttempts uint
	retryDelay    time.Duration
}

// NewExporter builds a service-account Sheets client for the configured
// spreadsheet.
func NewExporter(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Exporter, error) {
	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(cfg.GoogleCredentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return nil, errors.Wrap(err, "init sheets service")
	}
	return &Exporter{
		api:           &googleTabAPI{svc: svc, spreadsheetID: cfg.SpreadsheetID},
		log:           log,
		now:           time.Now,
		retryAttempts: 3,
		retryDelay:    10 * time.Second,
	}, nil
}

// Write exports rows as one tab per month. A tab that keeps failing is
// reported in its TabResult and the remaining months are still written.
func (e *Exporter) Write(ctx context.Context, dim model.Dimension, rows []model.ReportRow) []model.TabResult {
	byMonth := make(map[time.Time][]model.ReportRow)
	for _, r := range rows {
		byMonth[r.Month] = append(byMonth[r.Month], r)
	}
	months := make([]time.Time, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	results := make([]model.TabResult, 0, len(months))
	for _, month := range months {
		title := TabTitle(dim, month)
		err := e.writeTab(ctx, title, e.values(dim, byMonth[month]))
		if err != nil {
			e.log.WithError(err).WithField("tab", title).Warn("tab export failed")
			results = append(results, model.TabResult{Tab: title, Error: err.Error()})
			continue
		}
		results = append(results, model.TabResult{Tab: title, OK: true})
	}
	return results
}

func (e *Exporter) writeTab(ctx context.Context, title string, values [][]interface{}) error {
	return retry.Do(
		func() error {
			if err := e.api.EnsureTab(ctx, title); err != nil {
				return err
			}
			return e.api.Overwrite(ctx, title, values)
		},
		retry.Context(ctx),
		retry.Attempts(e.retryAttempts),
		retry.Delay(e.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isQuotaErr),
	)
}

func (e *Exporter) values(dim model.Dimension, rows []model.ReportRow) [][]interface{} {
	now := e.now().Format("2006-01-02 15:04:05")

	values := [][]interface{}{headerFor(dim)}
	for _, r := range rows {
		cells := []interface{}{MonthTabName(r.Month)}
		switch dim {
		case model.DimensionProject:
			cells = append(cells, r.ProjectName)
		case model.DimensionAssignee:
			cells = append(cells, r.AssigneeName)
		case model.DimensionProjectAssignee:
			cells = append(cells, r.ProjectName, r.AssigneeName)
		}
		cells = append(cells, r.TaskCount, round2(r.TotalActualTime), r.UnestimatedCount, now)
		values = append(values, cells)
	}
	return values
}

func headerFor(dim model.Dimension) []interface{} {
	switch dim {
	case model.DimensionAssignee:
		return []interface{}{"対象期間", "担当者名", "完了タスク数", "合計実績時間", "未見積タスク数", "最終更新日時"}
	case model.DimensionProjectAssignee:
		return []interface{}{"対象期間", "プロジェクト名", "担当者名", "完了タスク数", "合計実績時間", "未見積タスク数", "最終更新日時"}
	default:
		return []interface{}{"対象期間", "プロジェクト名", "完了タスク数", "合計実績時間", "未見積タスク数", "最終更新日時"}
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// isQuotaErr matches the rate-limit responses Sheets sends when the write
// quota is exhausted.
func isQuotaErr(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == 429 {
		return true
	}
	return apiErr.Code == 403 && (strings.Contains(apiErr.Message, "Quota exceeded") ||
		strings.Contains(apiErr.Message, "RESOURCE_EXHAUSTED"))
}

// googleTabAPI is the real Sheets-backed tab surface.
type googleTabAPI struct {
	svc           *sheetsapi.Service
	spreadsheetID string
}

func (g *googleTabAPI) EnsureTab(ctx context.Context, title string) error {
	spreadsheet, err := g.svc.Spreadsheets.Get(g.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return err
	}
	for _, s := range spreadsheet.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{Title: title},
			},
		}},
	}
	_, err = g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
	return err
}

func (g *googleTabAPI) Overwrite(ctx context.Context, title string, values [][]interface{}) error {
	// Clear the whole tab first so stale rows from a longer previous export
	// cannot survive below the new data.
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, fmt.Sprintf("'%s'", title), &sheetsapi.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return err
	}
	_, err = g.svc.Spreadsheets.Values.Update(g.spreadsheetID, fmt.Sprintf("'%s'!A1", title), &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}
