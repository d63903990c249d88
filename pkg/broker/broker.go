// Package broker implements the C9 worker discovery path's task queue and
// result backend, both served by the one Redis dependency already used
// elsewhere in this codebase (go-redis/redis/v8) rather than introducing an
// unrelated queue library: a Redis Stream is the durable task queue
// (XADD/XREADGROUP/XACK), and ordinary Redis hashes hold job/child state,
// standing in for what a Celery-style broker + result backend pair would
// otherwise provide.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Status is a job or child task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ChildProgress is one device's state within a job.
type ChildProgress struct {
	DeviceID    string `json:"device_id"`
	Status      Status `json:"status"`
	ProgressPct int    `json:"progress_pct"`
	CurrentStep string `json:"current_step"`
	Error       string `json:"error,omitempty"`
}

// JobProgress is the full reconstructed state of an orchestrator job.
type JobProgress struct {
	JobID        string          `json:"job_id"`
	Status       Status          `json:"status"`
	TotalDevices int             `json:"total_devices"`
	Completed    int             `json:"completed"`
	Failed       int             `json:"failed"`
	ProgressPct  int             `json:"progress_pct"`
	Devices      []ChildProgress `json:"devices"`
}

// Task is one child unit of work dequeued by a worker.
type Task struct {
	MessageID string
	JobID     string
	DeviceID  string
}

func jobKey(jobID string) string             { return "job:" + jobID }
func childKey(jobID, deviceID string) string { return "child:" + jobID + ":" + deviceID }

// Broker dispatches per-device discovery tasks through a Redis Stream and
// tracks job/child state in Redis hashes.
type Broker struct {
	client *redis.Client
	stream string
	group  string
}

// New returns a Broker publishing to stream, consumed by group.
func New(client *redis.Client, stream, group string) *Broker {
	return &Broker{client: client, stream: stream, group: group}
}

// EnsureGroup creates the consumer group (and the stream, if absent). Safe
// to call repeatedly; BUSYGROUP is not an error.
func (b *Broker) EnsureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("creating consumer group %s: %w", b.group, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// CreateJob registers an orchestrator job for deviceIDs, dispatches one
// child task per device onto the stream, and returns the job id. The
// orchestrator never blocks waiting on children: dispatch is the only
// thing CreateJob does before returning.
func (b *Broker) CreateJob(ctx context.Context, deviceIDs []string) (string, error) {
	jobID := uuid.NewString()
	idsJSON, err := json.Marshal(deviceIDs)
	if err != nil {
		return "", fmt.Errorf("encoding device ids: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID),
		"status", string(StatusRunning),
		"total_devices", len(deviceIDs),
		"completed", 0,
		"failed", 0,
		"device_ids", string(idsJSON),
	)
	for _, deviceID := range deviceIDs {
		pipe.HSet(ctx, childKey(jobID, deviceID),
			"status", string(StatusPending),
			"progress_pct", 0,
			"current_step", "",
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("initializing job %s: %w", jobID, err)
	}

	for _, deviceID := range deviceIDs {
		if err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: b.stream,
			Values: map[string]interface{}{"job_id": jobID, "device_id": deviceID},
		}).Err(); err != nil {
			return "", fmt.Errorf("dispatching child for device %s: %w", deviceID, err)
		}
	}
	return jobID, nil
}

// Dequeue blocks up to block for the next task assigned to consumer within
// the shared consumer group.
func (b *Broker) Dequeue(ctx context.Context, consumer string, block time.Duration) (*Task, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: consumer,
		Streams:  []string{b.stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading from %s: %w", b.stream, err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	msg := streams[0].Messages[0]
	return &Task{
		MessageID: msg.ID,
		JobID:     fmt.Sprintf("%v", msg.Values["job_id"]),
		DeviceID:  fmt.Sprintf("%v", msg.Values["device_id"]),
	}, nil
}

// Ack acknowledges a dequeued task, removing it from the pending entries
// list so a crashed worker's XPENDING backlog does not include it.
func (b *Broker) Ack(ctx context.Context, messageID string) error {
	return b.client.XAck(ctx, b.stream, b.group, messageID).Err()
}

// Pending lists tasks claimed by the group but not yet acknowledged,
// surfacing work orphaned by a worker crash for reclaim.
func (b *Broker) Pending(ctx context.Context) ([]redis.XPendingExt, error) {
	res, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.stream, Group: b.group, Start: "-", End: "+", Count: 100,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing pending entries for %s: %w", b.group, err)
	}
	return res, nil
}

// StartChild marks deviceID's child task running.
func (b *Broker) StartChild(ctx context.Context, jobID, deviceID string) error {
	return b.client.HSet(ctx, childKey(jobID, deviceID), "status", string(StatusRunning)).Err()
}

// UpdateChildProgress records deviceID's progress within a job. pct is
// stored as given; the discovery worker reports the share of its endpoints
// completed so far, one step per endpoint (about 14% each for the full
// seven-command order), not fixed 20% steps.
func (b *Broker) UpdateChildProgress(ctx context.Context, jobID, deviceID string, pct int, step string) error {
	return b.client.HSet(ctx, childKey(jobID, deviceID), "progress_pct", pct, "current_step", step).Err()
}

// CompleteChild marks deviceID terminal (completed/failed/cancelled) and
// recomputes the parent job's aggregate status.
func (b *Broker) CompleteChild(ctx context.Context, jobID, deviceID string, status Status, errMsg string) error {
	fields := map[string]interface{}{"status": string(status), "progress_pct": 100}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	if err := b.client.HSet(ctx, childKey(jobID, deviceID), fields).Err(); err != nil {
		return fmt.Errorf("completing child %s/%s: %w", jobID, deviceID, err)
	}
	return b.recomputeJobStatus(ctx, jobID)
}

func (b *Broker) recomputeJobStatus(ctx context.Context, jobID string) error {
	progress, err := b.Progress(ctx, jobID)
	if err != nil {
		return err
	}
	if progress.Status.terminal() {
		return nil
	}

	allTerminal := true
	succeeded := 0
	failed := 0
	for _, d := range progress.Devices {
		if !d.Status.terminal() {
			allTerminal = false
			break
		}
		if d.Status == StatusCompleted {
			succeeded++
		} else if d.Status == StatusFailed {
			failed++
		}
	}
	if !allTerminal {
		return nil
	}

	final := StatusFailed
	if succeeded > 0 {
		final = StatusCompleted
	}
	return b.client.HSet(ctx, jobKey(jobID), "status", string(final), "completed", succeeded, "failed", failed).Err()
}

// Cancel marks a job cancelled. Pending children are marked cancelled
// immediately; running children observe the cancellation the next time
// they call IsCancelled between commands and finish the current command
// before exiting.
func (b *Broker) Cancel(ctx context.Context, jobID string) error {
	progress, err := b.Progress(ctx, jobID)
	if err != nil {
		return err
	}
	if progress.Status.terminal() {
		return nil
	}
	for _, d := range progress.Devices {
		if d.Status == StatusPending {
			if err := b.client.HSet(ctx, childKey(jobID, d.DeviceID), "status", string(StatusCancelled)).Err(); err != nil {
				return fmt.Errorf("cancelling pending child %s/%s: %w", jobID, d.DeviceID, err)
			}
		}
	}
	return b.client.HSet(ctx, jobKey(jobID), "status", string(StatusCancelled)).Err()
}

// IsCancelled reports whether jobID has been cancelled, for a running
// child task to check between commands.
func (b *Broker) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	status, err := b.client.HGet(ctx, jobKey(jobID), "status").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return Status(status) == StatusCancelled, nil
}

// Progress reconstructs a job's full state: the job hash, then every
// device's child hash.
func (b *Broker) Progress(ctx context.Context, jobID string) (*JobProgress, error) {
	jobVals, err := b.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", jobID, err)
	}
	if len(jobVals) == 0 {
		return nil, fmt.Errorf("job %s not found", jobID)
	}

	var deviceIDs []string
	if err := json.Unmarshal([]byte(jobVals["device_ids"]), &deviceIDs); err != nil {
		return nil, fmt.Errorf("decoding device ids for job %s: %w", jobID, err)
	}

	devices := make([]ChildProgress, 0, len(deviceIDs))
	completed, failed := 0, 0
	for _, deviceID := range deviceIDs {
		childVals, err := b.client.HGetAll(ctx, childKey(jobID, deviceID)).Result()
		if err != nil {
			return nil, fmt.Errorf("reading child %s/%s: %w", jobID, deviceID, err)
		}
		cp := ChildProgress{DeviceID: deviceID, Status: Status(childVals["status"]), Error: childVals["error"]}
		fmt.Sscanf(childVals["progress_pct"], "%d", &cp.ProgressPct)
		cp.CurrentStep = childVals["current_step"]
		devices = append(devices, cp)
		switch cp.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}

	total := len(deviceIDs)
	progressPct := 0
	if total > 0 {
		sum := 0
		for _, d := range devices {
			sum += d.ProgressPct
		}
		progressPct = sum / total
	}

	return &JobProgress{
		JobID:        jobID,
		Status:       Status(jobVals["status"]),
		TotalDevices: total,
		Completed:    completed,
		Failed:       failed,
		ProgressPct:  progressPct,
		Devices:      devices,
	}, nil
}
