package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanalytics/go-asana-reporter/internal/asana"
	"github.com/asanalytics/go-asana-reporter/internal/model"
	"github.com/asanalytics/go-asana-reporter/internal/repository"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// memTaskStore mirrors the tri-state upsert semantics of the real store.
type memTaskStore struct {
	tasks   map[string]model.TaskRecord
	failOn  string
	history []repository.UpsertOutcome
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]model.TaskRecord)}
}

func (m *memTaskStore) UpsertTask(ctx context.Context, t *model.TaskRecord) (repository.UpsertOutcome, error) {
	if t.TaskID == m.failOn {
		return "", errors.New("connection reset")
	}
	outcome := repository.Inserted
	if existing, ok := m.tasks[t.TaskID]; ok {
		if existing.Equal(t) {
			outcome = repository.Unchanged
		} else {
			outcome = repository.Updated
		}
	}
	if outcome != repository.Unchanged {
		m.tasks[t.TaskID] = *t
	}
	m.history = append(m.history, outcome)
	return outcome, nil
}

func (m *memTaskStore) outcomes() map[repository.UpsertOutcome]int {
	counts := make(map[repository.UpsertOutcome]int)
	for _, o := range m.history {
		counts[o]++
	}
	return counts
}

type memSnapshotStore struct {
	rows []model.OpenTaskSnapshot
}

func (m *memSnapshotStore) InsertSnapshots(ctx context.Context, snapshots []model.OpenTaskSnapshot) error {
	m.rows = append(m.rows, snapshots...)
	return nil
}

type memRunStore struct {
	runs []model.RunHistory
}

func (m *memRunStore) CreateRunHistory(ctx context.Context, h *model.RunHistory) error {
	m.runs = append(m.runs, *h)
	return nil
}

// fakeSource serves canned projects and tasks and can fail per project.
type fakeSource struct {
	projects     []asana.Project
	projectsErr  error
	tasks        map[string][]asana.Task
	tasksErr     map[string]error
	openTasks    map[string][]asana.Task
	openTasksErr map[string]error
	subtasks     map[string][]asana.Task
}

func (f *fakeSource) Projects(ctx context.Context) ([]asana.Project, error) {
	return f.projects, f.projectsErr
}

func (f *fakeSource) TasksByProject(ctx context.Context, projectGID string, completedSince time.Time) ([]asana.Task, error) {
	if err := f.tasksErr[projectGID]; err != nil {
		return nil, err
	}
	return f.tasks[projectGID], nil
}

func (f *fakeSource) OpenTasks(ctx context.Context, projectGID string) ([]asana.Task, error) {
	if err := f.openTasksErr[projectGID]; err != nil {
		return nil, err
	}
	return f.openTasks[projectGID], nil
}

func (f *fakeSource) Subtasks(ctx context.Context, taskGID string) ([]asana.Task, error) {
	return f.subtasks[taskGID], nil
}

func ts(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 14, 30, 0, 0, time.UTC)
	return &t
}

func num(v float64) *float64 { return &v }

func completedTask(gid, name string) asana.Task {
	return asana.Task{
		GID:         gid,
		Name:        name,
		Completed:   true,
		CompletedAt: ts(2024, 3, 5),
		Assignee:    &asana.Assignee{GID: "u1", Name: "sato"},
		CustomFields: []asana.CustomField{
			{Name: "Estimated time", NumberValue: num(10)},
			{Name: "time_achievement_rate", NumberValue: num(0.8)},
		},
	}
}

func fetchFixture() (*fakeSource, *memTaskStore, *memRunStore) {
	source := &fakeSource{
		projects: []asana.Project{{GID: "p1", Name: "Alpha"}},
		tasks: map[string][]asana.Task{
			"p1": {completedTask("t1", "build"), {GID: "t2", Name: "open one", Completed: false}},
		},
		tasksErr: map[string]error{},
	}
	return source, newMemTaskStore(), &memRunStore{}
}

func TestFetchIngestsCompletedTasks(t *testing.T) {
	source, store, runs := fetchFixture()
	svc := NewFetchService(source, store, runs, nil, testLogger(), time.Time{})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, summary.Status)
	assert.Equal(t, 1, summary.Processed, "open tasks are not ingested")

	record := store.tasks["t1"]
	assert.Equal(t, "Alpha", record.ProjectName)
	assert.Equal(t, "sato", record.AssigneeName)
	require.NotNil(t, record.ActualTime)
	assert.Equal(t, 8.0, *record.ActualTime)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), record.CompletedAt)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, "fetch", runs.runs[0].Job)
}

func TestFetchIsIdempotent(t *testing.T) {
	source, store, runs := fetchFixture()
	svc := NewFetchService(source, store, runs, nil, testLogger(), time.Time{})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.NoError(t, err)

	counts := store.outcomes()
	assert.Equal(t, 1, counts[repository.Inserted])
	assert.Equal(t, 1, counts[repository.Unchanged], "replay of identical data writes nothing")
	assert.Zero(t, counts[repository.Updated])
}

func TestFetchExpandsSubtasks(t *testing.T) {
	source, store, runs := fetchFixture()
	parent := completedTask("t1", "build")
	parent.NumSubtasks = 1
	source.tasks["p1"] = []asana.Task{parent}
	source.subtasks = map[string][]asana.Task{
		"t1": {completedTask("t1-s1", "review")},
	}
	svc := NewFetchService(source, store, runs, nil, testLogger(), time.Time{})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, "[Subtask] review", store.tasks["t1-s1"].TaskName)
	assert.Equal(t, "Alpha", store.tasks["t1-s1"].ProjectName)
}

func TestFetchSkipsUnreachableProject(t *testing.T) {
	source, store, runs := fetchFixture()
	source.projects = append(source.projects, asana.Project{GID: "p2", Name: "Beta"})
	source.tasksErr["p2"] = &asana.APIError{StatusCode: 503}
	svc := NewFetchService(source, store, runs, nil, testLogger(), time.Time{})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunPartial, summary.Status)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Processed)
}

func TestFetchAbortsOnAuthError(t *testing.T) {
	source, store, runs := fetchFixture()
	source.tasksErr["p1"] = &asana.APIError{StatusCode: 401}
	svc := NewFetchService(source, store, runs, nil, testLogger(), time.Time{})

	summary, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.RunFailure, summary.Status)
	assert.Empty(t, store.tasks)
}

func TestFetchAbortsOnStoreError(t *testing.T) {
	source, store, runs := fetchFixture()
	store.failOn = "t1"
	svc := NewFetchService(source, store, runs, nil, testLogger(), time.Time{})

	summary, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.RunFailure, summary.Status)
	assert.Contains(t, err.Error(), "t1")
}

type fakeReports struct {
	rows map[model.Dimension][]model.ReportRow
	err  error
}

func (f *fakeReports) Rows(ctx context.Context, dim model.Dimension) ([]model.ReportRow, error) {
	return f.rows[dim], f.err
}

type fakeTabWriter struct {
	results map[model.Dimension][]model.TabResult
}

func (f *fakeTabWriter) Write(ctx context.Context, dim model.Dimension, rows []model.ReportRow) []model.TabResult {
	return f.results[dim]
}

func TestExportAllDimensionsSucceed(t *testing.T) {
	row := []model.ReportRow{{Month: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), TaskCount: 1}}
	reports := &fakeReports{rows: map[model.Dimension][]model.ReportRow{
		model.DimensionProject:         row,
		model.DimensionAssignee:        row,
		model.DimensionProjectAssignee: row,
	}}
	writer := &fakeTabWriter{results: map[model.Dimension][]model.TabResult{
		model.DimensionProject:         {{Tab: "a", OK: true}},
		model.DimensionAssignee:        {{Tab: "b", OK: true}},
		model.DimensionProjectAssignee: {{Tab: "c", OK: true}},
	}}
	runs := &memRunStore{}
	svc := NewExportService(reports, writer, runs, nil, testLogger())

	summary, err := svc.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, summary.Status)
	assert.Equal(t, 3, summary.Processed)
	require.Len(t, runs.runs, 1)
	assert.Equal(t, "export", runs.runs[0].Job)
}

func TestExportPartialOnTabFailure(t *testing.T) {
	row := []model.ReportRow{{Month: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), TaskCount: 1}}
	reports := &fakeReports{rows: map[model.Dimension][]model.ReportRow{model.DimensionProject: row}}
	writer := &fakeTabWriter{results: map[model.Dimension][]model.TabResult{
		model.DimensionProject: {
			{Tab: "ok-tab", OK: true},
			{Tab: "bad-tab", Error: "quota"},
		},
	}}
	svc := NewExportService(reports, writer, &memRunStore{}, nil, testLogger())

	summary, err := svc.Run(context.Background(), []model.Dimension{model.DimensionProject})
	require.NoError(t, err)
	assert.Equal(t, model.RunPartial, summary.Status)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
}

func TestExportFailureWhenStoreUnreadable(t *testing.T) {
	reports := &fakeReports{err: errors.New("db down")}
	svc := NewExportService(reports, &fakeTabWriter{}, &memRunStore{}, nil, testLogger())

	summary, err := svc.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, model.RunFailure, summary.Status)
}

func TestSnapshotAppendsEveryRun(t *testing.T) {
	source := &fakeSource{
		projects: []asana.Project{{GID: "p1", Name: "Alpha"}},
		openTasks: map[string][]asana.Task{
			"p1": {{GID: "t1", Name: "open", DueOn: "2024-05-01", Assignee: &asana.Assignee{Name: "sato"}}},
		},
		openTasksErr: map[string]error{},
	}
	store := &memSnapshotStore{}
	svc := NewSnapshotService(source, store, &memRunStore{}, nil, testLogger())

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, store.rows, 2, "snapshots accumulate, never replace")
	assert.Equal(t, "t1", store.rows[0].TaskID)
	assert.Equal(t, "open", store.rows[0].Status)
	require.NotNil(t, store.rows[0].DueDate)
	assert.Equal(t, "2024-05-01", store.rows[0].DueDate.Format("2006-01-02"))
}

func TestSnapshotSkipsUnreachableProject(t *testing.T) {
	source := &fakeSource{
		projects:     []asana.Project{{GID: "p1", Name: "Alpha"}, {GID: "p2", Name: "Beta"}},
		openTasks:    map[string][]asana.Task{"p1": {{GID: "t1", Name: "open"}}},
		openTasksErr: map[string]error{"p2": &asana.APIError{StatusCode: 500}},
	}
	store := &memSnapshotStore{}
	svc := NewSnapshotService(source, store, &memRunStore{}, nil, testLogger())

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunPartial, summary.Status)
	assert.Len(t, store.rows, 1)
}
