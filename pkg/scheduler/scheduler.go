// Package scheduler implements the table-backed periodic-task registry and
// beat loop (C11): a single poller reads due ScheduledTask rows and
// dispatches them to the worker tier. Only one beat instance is meant to run
// at a time, enforced by deployment configuration rather than this package.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

// Dispatcher sends a due task's identifier and kwargs to the broker for
// worker-tier execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskIdentifier string, kwargs map[string]interface{}) error
}

// Store is the narrow read/write view over the ScheduledTask table the beat
// loop needs.
type Store interface {
	ListEnabled(ctx context.Context) ([]model.ScheduledTask, error)
	RecordRun(ctx context.Context, taskID string, runAt time.Time) error
	DisableTask(ctx context.Context, taskID string) error
}

// IsDue reports whether task should fire as of asOf, given its schedule
// kind and last run time. A task that has never run fires immediately
// (both for interval and crontab schedules); afterward, interval tasks fire
// every IntervalSecs and crontab tasks fire per the standard five-field
// expression's next occurrence after their last run.
func IsDue(task model.ScheduledTask, asOf time.Time) (bool, error) {
	if task.ExpiresAt != nil && asOf.After(*task.ExpiresAt) {
		return false, nil
	}

	switch task.ScheduleKind {
	case model.ScheduleInterval:
		if task.IntervalSecs <= 0 {
			return false, fmt.Errorf("scheduled task %s: non-positive interval", task.ID)
		}
		if task.LastRunAt == nil {
			return true, nil
		}
		due := task.LastRunAt.Add(time.Duration(task.IntervalSecs) * time.Second)
		return !asOf.Before(due), nil

	case model.ScheduleCrontab:
		if task.LastRunAt == nil {
			return true, nil
		}
		schedule, err := cron.ParseStandard(task.CrontabExpr)
		if err != nil {
			return false, fmt.Errorf("scheduled task %s: invalid crontab expression: %w", task.ID, err)
		}
		next := schedule.Next(*task.LastRunAt)
		return !next.After(asOf), nil

	default:
		return false, fmt.Errorf("scheduled task %s: unknown schedule kind %q", task.ID, task.ScheduleKind)
	}
}

// Beat polls Store on Interval, dispatching every due task and recording
// its run. Dispatch failures are logged and skipped rather than aborting
// the tick, so one broken task never blocks the rest.
type Beat struct {
	Store      Store
	Dispatcher Dispatcher
	Interval   time.Duration
	Now        func() time.Time
}

// NewBeat returns a Beat polling every 10 seconds.
func NewBeat(store Store, dispatcher Dispatcher) *Beat {
	return &Beat{Store: store, Dispatcher: dispatcher, Interval: 10 * time.Second, Now: time.Now}
}

// Run loops Tick on Interval until ctx is cancelled.
func (b *Beat) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.Tick(ctx); err != nil {
				util.WithField("error", err).Error("scheduler beat tick failed")
			}
		}
	}
}

// Tick evaluates every enabled task once, dispatching and recording the due
// ones.
func (b *Beat) Tick(ctx context.Context) error {
	now := b.Now()
	tasks, err := b.Store.ListEnabled(ctx)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		due, err := IsDue(task, now)
		if err != nil {
			util.WithFields(map[string]interface{}{"task_id": task.ID, "error": err.Error()}).Error("invalid schedule")
			continue
		}
		if !due {
			continue
		}

		kwargs := make(map[string]interface{}, len(task.Kwargs)+1)
		for k, v := range task.Kwargs {
			kwargs[k] = v
		}
		kwargs["scheduled_task_id"] = task.ID

		if err := b.Dispatcher.Dispatch(ctx, task.TaskIdentifier, kwargs); err != nil {
			util.WithFields(map[string]interface{}{"task_id": task.ID, "error": err.Error()}).Error("scheduled dispatch failed")
			continue
		}
		if err := b.Store.RecordRun(ctx, task.ID, now); err != nil {
			return err
		}
		if task.OneOff {
			if err := b.Store.DisableTask(ctx, task.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
