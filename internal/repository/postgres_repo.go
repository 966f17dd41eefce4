package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/asanalytics/go-asana-reporter/internal/config"
	"github.com/asanalytics/go-asana-reporter/internal/model"
)

// UpsertOutcome is the tri-state result of a task upsert.
type UpsertOutcome string

const (
	Inserted  UpsertOutcome = "inserted"
	Updated   UpsertOutcome = "updated"
	Unchanged UpsertOutcome = "unchanged"
)

type PostgresRepo struct {
	DB *sql.DB
}

// NewPostgresRepo opens and pings the store described by cfg. DATABASE_URL
// wins over the individual DB_* settings when set.
func NewPostgresRepo(cfg *config.Config) (*PostgresRepo, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName, cfg.DBSSLMode)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &PostgresRepo{DB: db}, nil
}

func (r *PostgresRepo) RunMigrations(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
		`CREATE TABLE IF NOT EXISTS admins (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username VARCHAR(100) UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			task_name TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			project_name TEXT NOT NULL DEFAULT '',
			assignee_id TEXT NOT NULL DEFAULT '',
			assignee_name TEXT NOT NULL DEFAULT '',
			completed_at DATE NOT NULL,
			estimated_time DOUBLE PRECISION,
			time_achievement_rate DOUBLE PRECISION,
			actual_time_raw DOUBLE PRECISION,
			actual_time DOUBLE PRECISION,
			tags TEXT[],
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_completed_at ON tasks (completed_at);`,
		`CREATE TABLE IF NOT EXISTS open_task_snapshots (
			id BIGSERIAL PRIMARY KEY,
			snapshot_date DATE NOT NULL,
			task_id TEXT NOT NULL,
			project_name TEXT NOT NULL DEFAULT '',
			assignee_name TEXT NOT NULL DEFAULT '',
			due_date DATE,
			status TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_date ON open_task_snapshots (snapshot_date);`,
		`CREATE TABLE IF NOT EXISTS run_history (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			job TEXT NOT NULL,
			status TEXT NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			details JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, q := range queries {
		if _, err := r.DB.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "run migrations")
		}
	}
	return nil
}

// UpsertTask inserts or conditionally updates one task record, keyed on
// task_id. When the stored row matches on every tracked field no write
// happens at all, so replaying an already-ingested batch leaves inserted_at
// untouched. The insert carries ON CONFLICT so two interleaved runs cannot
// create duplicates.
func (r *PostgresRepo) UpsertTask(ctx context.Context, t *model.TaskRecord) (UpsertOutcome, error) {
	t.Tags = model.NormalizeTags(t.Tags)

	existing, err := r.getTask(ctx, t.TaskID)
	if err != nil {
		return "", errors.Wrapf(err, "upsert task %s: lookup", t.TaskID)
	}

	if existing != nil {
		if existing.Equal(t) {
			return Unchanged, nil
		}
		_, err := r.DB.ExecContext(ctx, `
			UPDATE tasks SET
				task_name = $2,
				project_id = $3,
				project_name = $4,
				assignee_id = $5,
				assignee_name = $6,
				completed_at = $7,
				estimated_time = $8,
				time_achievement_rate = $9,
				actual_time_raw = $10,
				actual_time = $11,
				tags = $12,
				inserted_at = now()
			WHERE task_id = $1
		`, t.TaskID, t.TaskName, t.ProjectID, t.ProjectName, t.AssigneeID, t.AssigneeName,
			t.CompletedAt, nullFloat(t.EstimatedTime), nullFloat(t.TimeAchievementRate),
			nullFloat(t.ActualTimeRaw), nullFloat(t.ActualTime), pq.Array(t.Tags))
		if err != nil {
			return "", errors.Wrapf(err, "upsert task %s: update", t.TaskID)
		}
		return Updated, nil
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO tasks (
			task_id, task_name, project_id, project_name, assignee_id, assignee_name,
			completed_at, estimated_time, time_achievement_rate, actual_time_raw, actual_time,
			tags, inserted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
		ON CONFLICT (task_id) DO UPDATE SET
			task_name = EXCLUDED.task_name,
			project_id = EXCLUDED.project_id,
			project_name = EXCLUDED.project_name,
			assignee_id = EXCLUDED.assignee_id,
			assignee_name = EXCLUDED.assignee_name,
			completed_at = EXCLUDED.completed_at,
			estimated_time = EXCLUDED.estimated_time,
			time_achievement_rate = EXCLUDED.time_achievement_rate,
			actual_time_raw = EXCLUDED.actual_time_raw,
			actual_time = EXCLUDED.actual_time,
			tags = EXCLUDED.tags,
			inserted_at = now()
	`, t.TaskID, t.TaskName, t.ProjectID, t.ProjectName, t.AssigneeID, t.AssigneeName,
		t.CompletedAt, nullFloat(t.EstimatedTime), nullFloat(t.TimeAchievementRate),
		nullFloat(t.ActualTimeRaw), nullFloat(t.ActualTime), pq.Array(t.Tags))
	if err != nil {
		return "", errors.Wrapf(err, "upsert task %s: insert", t.TaskID)
	}
	return Inserted, nil
}

func (r *PostgresRepo) getTask(ctx context.Context, taskID string) (*model.TaskRecord, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT task_id, task_name, project_id, project_name, assignee_id, assignee_name,
		       completed_at, estimated_time, time_achievement_rate, actual_time_raw, actual_time,
		       tags, inserted_at
		FROM tasks WHERE task_id = $1
	`, taskID)

	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListCompletedTasks returns every stored task record ordered by completion
// date then task id. The aggregator does its grouping in memory.
func (r *PostgresRepo) ListCompletedTasks(ctx context.Context) ([]model.TaskRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT task_id, task_name, project_id, project_name, assignee_id, assignee_name,
		       completed_at, estimated_time, time_achievement_rate, actual_time_raw, actual_time,
		       tags, inserted_at
		FROM tasks
		ORDER BY completed_at, task_id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list completed tasks")
	}
	defer rows.Close()

	var out []model.TaskRecord
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "list completed tasks: scan")
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTask(scan func(...interface{}) error) (*model.TaskRecord, error) {
	var t model.TaskRecord
	var estimated, rate, raw, actual sql.NullFloat64
	var tags pq.StringArray

	err := scan(
		&t.TaskID, &t.TaskName, &t.ProjectID, &t.ProjectName, &t.AssigneeID, &t.AssigneeName,
		&t.CompletedAt, &estimated, &rate, &raw, &actual, &tags, &t.InsertedAt,
	)
	if err != nil {
		return nil, err
	}

	t.EstimatedTime = floatPtr(estimated)
	t.TimeAchievementRate = floatPtr(rate)
	t.ActualTimeRaw = floatPtr(raw)
	t.ActualTime = floatPtr(actual)
	t.Tags = []string(tags)
	t.CompletedAt = t.CompletedAt.UTC()
	return &t, nil
}

// InsertSnapshots appends one row per open task. There is deliberately no
// conflict clause: every snapshot run adds new rows.
func (r *PostgresRepo) InsertSnapshots(ctx context.Context, snapshots []model.OpenTaskSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "insert snapshots: begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO open_task_snapshots (snapshot_date, task_id, project_name, assignee_name, due_date, status)
		VALUES ($1,$2,$3,$4,$5,$6)
	`)
	if err != nil {
		return errors.Wrap(err, "insert snapshots: prepare")
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if _, err := stmt.ExecContext(ctx, s.SnapshotDate, s.TaskID, s.ProjectName, s.AssigneeName, nullTime(s.DueDate), s.Status); err != nil {
			return errors.Wrapf(err, "insert snapshot for task %s", s.TaskID)
		}
	}
	return errors.Wrap(tx.Commit(), "insert snapshots: commit")
}

func (r *PostgresRepo) CreateRunHistory(ctx context.Context, h *model.RunHistory) error {
	// JSONB wants a text literal, not bytea.
	var details interface{}
	if len(h.Details) > 0 {
		details = string(h.Details)
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO run_history (run_id, job, status, duration_ms, details)
		VALUES ($1,$2,$3,$4,$5)
	`, h.RunID, h.Job, h.Status, h.DurationMs, details)
	return errors.Wrap(err, "create run history")
}

func (r *PostgresRepo) ListRunHistory(ctx context.Context, limit int) ([]model.RunHistory, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, run_id, job, status, duration_ms, details, created_at
		FROM run_history
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list run history")
	}
	defer rows.Close()

	var out []model.RunHistory
	for rows.Next() {
		var h model.RunHistory
		var details []byte
		if err := rows.Scan(&h.ID, &h.RunID, &h.Job, &h.Status, &h.DurationMs, &details, &h.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "list run history: scan")
		}
		h.Details = details
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetAdminByUsername(ctx context.Context, username string) (*model.Admin, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM admins WHERE username = $1
		LIMIT 1
	`, username)

	var a model.Admin
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRepo) UpsertAdmin(ctx context.Context, username, passwordHash string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO admins (username, password_hash) VALUES ($1,$2)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash
	`, username, passwordHash)
	return errors.Wrap(err, "upsert admin")
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
