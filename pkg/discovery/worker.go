package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/nocauto/noc-engine/pkg/audit"
	"github.com/nocauto/noc-engine/pkg/broker"
	"github.com/nocauto/noc-engine/pkg/util"
)

// Orchestrator is the C9 worker-path entry point: it dispatches a job
// (one child task per device) and returns immediately with the job id,
// never blocking on child execution — a task synchronously waiting on
// tasks it spawned would deadlock a bounded worker pool.
type Orchestrator struct {
	Broker *broker.Broker
}

// NewOrchestrator returns an Orchestrator backed by b.
func NewOrchestrator(b *broker.Broker) *Orchestrator {
	return &Orchestrator{Broker: b}
}

// Dispatch creates a job for deviceIDs and returns its id without waiting
// for any child task to run.
func (o *Orchestrator) Dispatch(ctx context.Context, deviceIDs []string) (string, error) {
	jobID, err := o.Broker.CreateJob(ctx, deviceIDs)
	if err != nil {
		return "", util.NewCommandError(util.KindBrokerUnavailable, "", "", err.Error())
	}
	audit.Log(audit.NewEvent(audit.EventTypeTaskDispatch, "", "").
		WithJob(jobID).WithMessage(fmt.Sprintf("dispatched %d devices", len(deviceIDs))).WithSuccess())
	return jobID, nil
}

// Progress reconstructs a job's externally-visible state from the
// orchestrator record plus its children's records.
func (o *Orchestrator) Progress(ctx context.Context, jobID string) (*broker.JobProgress, error) {
	return o.Broker.Progress(ctx, jobID)
}

// Cancel revokes pending children immediately; running children observe
// cancellation the next time they check between commands.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	if err := o.Broker.Cancel(ctx, jobID); err != nil {
		return err
	}
	audit.Log(audit.NewEvent(audit.EventTypeTaskCancel, "", "").WithJob(jobID).WithSuccess())
	return nil
}

// Worker consumes child discovery tasks from the broker, one device per
// task, running the fixed command order sequentially and reporting
// progress at each step.
type Worker struct {
	Broker      *broker.Broker
	Executor    Executor
	Endpoints   []string
	OwnerUserOf func(jobID string) string
	PollBlock   time.Duration
}

// NewWorker returns a Worker running the full CommandOrder against every
// dispatched device, attributing credential lookups to ownerUser.
func NewWorker(b *broker.Broker, exec Executor, ownerUser string) *Worker {
	return &Worker{
		Broker:      b,
		Executor:    exec,
		Endpoints:   CommandOrder,
		OwnerUserOf: func(string) string { return ownerUser },
		PollBlock:   2 * time.Second,
	}
}

// Run loops dequeuing and processing tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, consumer string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		task, err := w.Broker.Dequeue(ctx, consumer, w.PollBlock)
		if err != nil {
			return err
		}
		if task == nil {
			continue
		}
		w.processTask(ctx, task)
		if err := w.Broker.Ack(ctx, task.MessageID); err != nil {
			return err
		}
	}
}

// processTask runs one device's full discovery, checking cancellation
// between commands and updating progress after each.
func (w *Worker) processTask(ctx context.Context, task *broker.Task) {
	progress, err := w.Broker.Progress(ctx, task.JobID)
	if err == nil {
		for _, d := range progress.Devices {
			if d.DeviceID == task.DeviceID && d.Status == broker.StatusCancelled {
				return
			}
		}
	}

	w.Broker.StartChild(ctx, task.JobID, task.DeviceID)

	ownerUser := w.OwnerUserOf(task.JobID)
	endpoints := w.Endpoints
	var lastErr string
	failures := 0

	for i, endpoint := range endpoints {
		if cancelled, _ := w.Broker.IsCancelled(ctx, task.JobID); cancelled {
			w.Broker.CompleteChild(ctx, task.JobID, task.DeviceID, broker.StatusCancelled, "")
			return
		}

		_, err := w.Executor.Run(ctx, task.DeviceID, endpoint, ExecutorOptions{OwnerUser: ownerUser})
		if err != nil {
			lastErr = errorMessage(err)
			failures++
		}

		pct := (i + 1) * 100 / len(endpoints)
		w.Broker.UpdateChildProgress(ctx, task.JobID, task.DeviceID, pct, endpoint)
	}

	// A device fails the job only if every command failed; per-command
	// errors otherwise remain contained (they don't fail the device as a
	// whole), matching the async path's per-device success policy.
	if failures == len(endpoints) && len(endpoints) > 0 {
		w.Broker.CompleteChild(ctx, task.JobID, task.DeviceID, broker.StatusFailed, lastErr)
	} else {
		w.Broker.CompleteChild(ctx, task.JobID, task.DeviceID, broker.StatusCompleted, "")
	}
}
