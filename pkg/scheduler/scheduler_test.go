package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nocauto/noc-engine/pkg/model"
)

var errTestDispatch = errors.New("dispatch failed")

func TestIsDue_IntervalTask_NeverRun_IsDue(t *testing.T) {
	task := model.ScheduledTask{ID: "t1", ScheduleKind: model.ScheduleInterval, IntervalSecs: 60}
	due, err := IsDue(task, time.Now())
	if err != nil {
		t.Fatalf("IsDue() error = %v", err)
	}
	if !due {
		t.Error("IsDue() = false, want true for never-run interval task")
	}
}

func TestIsDue_IntervalTask_BeforeNextFire_NotDue(t *testing.T) {
	now := time.Now()
	last := now.Add(-30 * time.Second)
	task := model.ScheduledTask{ID: "t1", ScheduleKind: model.ScheduleInterval, IntervalSecs: 60, LastRunAt: &last}
	due, err := IsDue(task, now)
	if err != nil {
		t.Fatalf("IsDue() error = %v", err)
	}
	if due {
		t.Error("IsDue() = true, want false (only 30s elapsed of a 60s interval)")
	}
}

func TestIsDue_IntervalTask_AfterNextFire_IsDue(t *testing.T) {
	now := time.Now()
	last := now.Add(-90 * time.Second)
	task := model.ScheduledTask{ID: "t1", ScheduleKind: model.ScheduleInterval, IntervalSecs: 60, LastRunAt: &last}
	due, err := IsDue(task, now)
	if err != nil {
		t.Fatalf("IsDue() error = %v", err)
	}
	if !due {
		t.Error("IsDue() = false, want true (90s elapsed of a 60s interval)")
	}
}

func TestIsDue_CrontabTask_NeverRun_IsDue(t *testing.T) {
	task := model.ScheduledTask{ID: "t1", ScheduleKind: model.ScheduleCrontab, CrontabExpr: "0 0 * * *"}
	due, err := IsDue(task, time.Now())
	if err != nil {
		t.Fatalf("IsDue() error = %v", err)
	}
	if !due {
		t.Error("IsDue() = false, want true for never-run crontab task")
	}
}

func TestIsDue_CrontabTask_NextOccurrenceNotYetReached(t *testing.T) {
	last := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	task := model.ScheduledTask{ID: "t1", ScheduleKind: model.ScheduleCrontab, CrontabExpr: "0 0 * * *", LastRunAt: &last}
	due, err := IsDue(task, asOf)
	if err != nil {
		t.Fatalf("IsDue() error = %v", err)
	}
	if due {
		t.Error("IsDue() = true, want false (next midnight occurrence not reached yet)")
	}
}

func TestIsDue_CrontabTask_NextOccurrenceReached(t *testing.T) {
	last := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2026, 7, 31, 0, 0, 1, 0, time.UTC)
	task := model.ScheduledTask{ID: "t1", ScheduleKind: model.ScheduleCrontab, CrontabExpr: "0 0 * * *", LastRunAt: &last}
	due, err := IsDue(task, asOf)
	if err != nil {
		t.Fatalf("IsDue() error = %v", err)
	}
	if !due {
		t.Error("IsDue() = false, want true (next midnight occurrence has passed)")
	}
}

func TestIsDue_ExpiredTask_NeverDue(t *testing.T) {
	expires := time.Now().Add(-time.Hour)
	task := model.ScheduledTask{ID: "t1", ScheduleKind: model.ScheduleInterval, IntervalSecs: 10, ExpiresAt: &expires}
	due, err := IsDue(task, time.Now())
	if err != nil {
		t.Fatalf("IsDue() error = %v", err)
	}
	if due {
		t.Error("IsDue() = true, want false for an expired task")
	}
}

type fakeStore struct {
	mu       sync.Mutex
	tasks    []model.ScheduledTask
	runs     map[string]time.Time
	disabled map[string]bool
}

func newFakeStore(tasks ...model.ScheduledTask) *fakeStore {
	return &fakeStore{tasks: tasks, runs: make(map[string]time.Time), disabled: make(map[string]bool)}
}

func (f *fakeStore) ListEnabled(ctx context.Context) ([]model.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ScheduledTask
	for _, t := range f.tasks {
		if !f.disabled[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordRun(ctx context.Context, taskID string, runAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[taskID] = runAt
	return nil
}

func (f *fakeStore) DisableTask(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled[taskID] = true
	return nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{fail: make(map[string]bool)}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, taskIdentifier string, kwargs map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[taskIdentifier] {
		return errTestDispatch
	}
	f.sent = append(f.sent, taskIdentifier)
	return nil
}

func TestBeat_Tick_DispatchesDueTask_AndRecordsRun(t *testing.T) {
	store := newFakeStore(model.ScheduledTask{
		ID: "t1", TaskIdentifier: model.TaskDiscoverTopology, ScheduleKind: model.ScheduleInterval, IntervalSecs: 60,
	})
	dispatcher := newFakeDispatcher()
	beat := NewBeat(store, dispatcher)
	beat.Now = func() time.Time { return time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) }

	if err := beat.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(dispatcher.sent) != 1 || dispatcher.sent[0] != model.TaskDiscoverTopology {
		t.Errorf("sent = %v, want one dispatch of %s", dispatcher.sent, model.TaskDiscoverTopology)
	}
	if _, ran := store.runs["t1"]; !ran {
		t.Error("RecordRun was not called for the dispatched task")
	}
}

func TestBeat_Tick_OneOffTask_DisabledAfterRun(t *testing.T) {
	store := newFakeStore(model.ScheduledTask{
		ID: "t1", TaskIdentifier: model.TaskCreateBaseline, ScheduleKind: model.ScheduleInterval, IntervalSecs: 60, OneOff: true,
	})
	beat := NewBeat(store, newFakeDispatcher())
	beat.Now = time.Now

	if err := beat.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if !store.disabled["t1"] {
		t.Error("one_off task should be disabled after its single run")
	}
}

func TestBeat_Tick_NotDueTask_SkipsDispatch(t *testing.T) {
	last := time.Now()
	store := newFakeStore(model.ScheduledTask{
		ID: "t1", TaskIdentifier: model.TaskDiscoverTopology, ScheduleKind: model.ScheduleInterval, IntervalSecs: 3600, LastRunAt: &last,
	})
	dispatcher := newFakeDispatcher()
	beat := NewBeat(store, dispatcher)

	if err := beat.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(dispatcher.sent) != 0 {
		t.Errorf("sent = %v, want no dispatch for a not-yet-due task", dispatcher.sent)
	}
}

func TestBeat_Tick_DispatchFailure_DoesNotRecordRun_AndContinues(t *testing.T) {
	store := newFakeStore(
		model.ScheduledTask{ID: "t1", TaskIdentifier: "broken-task", ScheduleKind: model.ScheduleInterval, IntervalSecs: 60},
		model.ScheduledTask{ID: "t2", TaskIdentifier: model.TaskDiscoverTopology, ScheduleKind: model.ScheduleInterval, IntervalSecs: 60},
	)
	dispatcher := newFakeDispatcher()
	dispatcher.fail["broken-task"] = true
	beat := NewBeat(store, dispatcher)

	if err := beat.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if _, ran := store.runs["t1"]; ran {
		t.Error("RecordRun should not be called when dispatch fails")
	}
	if _, ran := store.runs["t2"]; !ran {
		t.Error("a later task's dispatch should still run after an earlier one fails")
	}
}

func TestBeat_Tick_InjectsScheduledTaskIDIntoKwargs(t *testing.T) {
	store := newFakeStore(model.ScheduledTask{
		ID: "t1", TaskIdentifier: model.TaskDiscoverTopology, ScheduleKind: model.ScheduleInterval, IntervalSecs: 60,
		Kwargs: map[string]interface{}{"username": "alice"},
	})
	var captured map[string]interface{}
	dispatcher := &capturingDispatcher{capture: &captured}
	beat := NewBeat(store, dispatcher)

	if err := beat.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if captured["scheduled_task_id"] != "t1" || captured["username"] != "alice" {
		t.Errorf("captured kwargs = %v", captured)
	}
}

type capturingDispatcher struct {
	capture *map[string]interface{}
}

func (c *capturingDispatcher) Dispatch(ctx context.Context, taskIdentifier string, kwargs map[string]interface{}) error {
	*c.capture = kwargs
	return nil
}
