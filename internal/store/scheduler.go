package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nocauto/noc-engine/pkg/model"
)

// SchedulerRepository implements scheduler.Store over Postgres, plus the
// CRUD and ownership-registration operations the HTTP layer needs around it.
type SchedulerRepository struct {
	db *sqlx.DB
}

// NewSchedulerRepository returns a SchedulerRepository backed by db.
func NewSchedulerRepository(db *sqlx.DB) *SchedulerRepository {
	return &SchedulerRepository{db: db}
}

// scheduledTaskRow mirrors model.ScheduledTask but scans Kwargs as raw JSONB,
// since map[string]interface{} has no sql.Scanner of its own.
type scheduledTaskRow struct {
	ID             string          `db:"id"`
	Name           string          `db:"name"`
	TaskIdentifier string          `db:"task_identifier"`
	ScheduleKind   string          `db:"schedule_kind"`
	IntervalSecs   int             `db:"interval_secs"`
	CrontabExpr    string          `db:"crontab_expr"`
	Kwargs         json.RawMessage `db:"kwargs"`
	Enabled        bool            `db:"enabled"`
	OneOff         bool            `db:"one_off"`
	ExpiresAt      *time.Time      `db:"expires_at"`
	LastRunAt      *time.Time      `db:"last_run_at"`
	TotalRunCount  int             `db:"total_run_count"`
}

func (r scheduledTaskRow) toModel() (model.ScheduledTask, error) {
	kwargs := map[string]interface{}{}
	if len(r.Kwargs) > 0 {
		if err := json.Unmarshal(r.Kwargs, &kwargs); err != nil {
			return model.ScheduledTask{}, fmt.Errorf("decoding kwargs for task %s: %w", r.ID, err)
		}
	}
	return model.ScheduledTask{
		ID:             r.ID,
		Name:           r.Name,
		TaskIdentifier: r.TaskIdentifier,
		ScheduleKind:   model.ScheduleKind(r.ScheduleKind),
		IntervalSecs:   r.IntervalSecs,
		CrontabExpr:    r.CrontabExpr,
		Kwargs:         kwargs,
		Enabled:        r.Enabled,
		OneOff:         r.OneOff,
		ExpiresAt:      r.ExpiresAt,
		LastRunAt:      r.LastRunAt,
		TotalRunCount:  r.TotalRunCount,
	}, nil
}

const scheduledTaskColumns = `
	id, name, task_identifier, schedule_kind, interval_secs, crontab_expr,
	kwargs, enabled, one_off, expires_at, last_run_at, total_run_count
`

func (r *SchedulerRepository) ListEnabled(ctx context.Context) ([]model.ScheduledTask, error) {
	var rows []scheduledTaskRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+scheduledTaskColumns+` FROM scheduled_tasks WHERE enabled = true
	`)
	if err != nil {
		return nil, fmt.Errorf("listing enabled tasks: %w", err)
	}
	out := make([]model.ScheduledTask, 0, len(rows))
	for _, row := range rows {
		task, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

func (r *SchedulerRepository) RecordRun(ctx context.Context, taskID string, runAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_run_at = $2, total_run_count = total_run_count + 1
		WHERE id = $1
	`, taskID, runAt)
	if err != nil {
		return fmt.Errorf("recording run for task %s: %w", taskID, err)
	}
	return nil
}

func (r *SchedulerRepository) DisableTask(ctx context.Context, taskID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scheduled_tasks SET enabled = false WHERE id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("disabling task %s: %w", taskID, err)
	}
	return nil
}

// Get returns a single task by id, or nil, sql.ErrNoRows if absent.
func (r *SchedulerRepository) Get(ctx context.Context, taskID string) (*model.ScheduledTask, error) {
	var row scheduledTaskRow
	err := r.db.GetContext(ctx, &row, `SELECT `+scheduledTaskColumns+` FROM scheduled_tasks WHERE id = $1`, taskID)
	if err != nil {
		return nil, err
	}
	task, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns every scheduled task, enabled or not.
func (r *SchedulerRepository) List(ctx context.Context) ([]model.ScheduledTask, error) {
	var rows []scheduledTaskRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+scheduledTaskColumns+` FROM scheduled_tasks ORDER BY name`); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	out := make([]model.ScheduledTask, 0, len(rows))
	for _, row := range rows {
		task, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

// Create inserts a new scheduled task and its owning user in one transaction.
func (r *SchedulerRepository) Create(ctx context.Context, task *model.ScheduledTask, ownerUsername, ownerUserID string) error {
	kwargs, err := json.Marshal(task.Kwargs)
	if err != nil {
		return fmt.Errorf("encoding kwargs for task %s: %w", task.ID, err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (
			id, name, task_identifier, schedule_kind, interval_secs, crontab_expr,
			kwargs, enabled, one_off, expires_at, last_run_at, total_run_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, task.ID, task.Name, task.TaskIdentifier, string(task.ScheduleKind), task.IntervalSecs, task.CrontabExpr,
		kwargs, task.Enabled, task.OneOff, task.ExpiresAt, task.LastRunAt, task.TotalRunCount)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", task.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_ownerships (scheduled_task_id, owner_username, owner_user_id)
		VALUES ($1, $2, $3)
	`, task.ID, ownerUsername, ownerUserID)
	if err != nil {
		return fmt.Errorf("inserting ownership for task %s: %w", task.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing task %s: %w", task.ID, err)
	}
	return nil
}

// Update replaces a task's mutable scheduling fields.
func (r *SchedulerRepository) Update(ctx context.Context, task *model.ScheduledTask) error {
	kwargs, err := json.Marshal(task.Kwargs)
	if err != nil {
		return fmt.Errorf("encoding kwargs for task %s: %w", task.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET
			name = $2, task_identifier = $3, schedule_kind = $4, interval_secs = $5,
			crontab_expr = $6, kwargs = $7, enabled = $8, one_off = $9, expires_at = $10
		WHERE id = $1
	`, task.ID, task.Name, task.TaskIdentifier, string(task.ScheduleKind), task.IntervalSecs,
		task.CrontabExpr, kwargs, task.Enabled, task.OneOff, task.ExpiresAt)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", task.ID, err)
	}
	return nil
}

// Delete removes a task; its ownership row cascades.
func (r *SchedulerRepository) Delete(ctx context.Context, taskID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of task %s: %w", taskID, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
