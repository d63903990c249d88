package baseline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/parser"
)

type fakeExecutor struct {
	records map[string][]model.Record // "deviceID/endpoint" -> records
	failing map[string]bool
}

func (f *fakeExecutor) Run(ctx context.Context, deviceID, endpoint string, opts ExecutorOptions) (*ExecutorResult, error) {
	if f.failing[deviceID+"/"+endpoint] {
		return nil, errExecutorFailed
	}
	return &ExecutorResult{Records: f.records[deviceID+"/"+endpoint]}, nil
}

var errExecutorFailed = fmt.Errorf("executor run failed")

type fakeStore struct {
	rows map[string]*model.Baseline // "deviceID/command" -> row
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*model.Baseline)}
}

func (f *fakeStore) GetBaseline(ctx context.Context, deviceID, command string) (*model.Baseline, error) {
	return f.rows[deviceID+"/"+command], nil
}

func (f *fakeStore) SaveBaseline(ctx context.Context, b *model.Baseline) error {
	f.rows[b.DeviceID+"/"+b.Command] = b
	return nil
}

func TestEngine_Snapshot_FirstRun_CreatesVersion1(t *testing.T) {
	exec := &fakeExecutor{records: map[string][]model.Record{
		"d1/interfaces": {{"name": "Gi0/1", "status": "up"}},
	}}
	store := newFakeStore()
	e := New(exec, store)
	e.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	baselines, err := e.Snapshot(context.Background(), []string{"d1"}, []string{parser.EndpointInterfaces}, "alice", "initial")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(baselines) != 1 || baselines[0].Version != 1 {
		t.Fatalf("baselines = %+v, want one version-1 row", baselines)
	}
}

func TestEngine_Snapshot_SecondRun_IncrementsVersion(t *testing.T) {
	exec := &fakeExecutor{records: map[string][]model.Record{
		"d1/interfaces": {{"name": "Gi0/1", "status": "up"}},
	}}
	store := newFakeStore()
	e := New(exec, store)

	if _, err := e.Snapshot(context.Background(), []string{"d1"}, []string{parser.EndpointInterfaces}, "alice", "v1"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	exec.records["d1/interfaces"] = []model.Record{{"name": "Gi0/1", "status": "down"}}
	baselines, err := e.Snapshot(context.Background(), []string{"d1"}, []string{parser.EndpointInterfaces}, "alice", "v2")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if baselines[0].Version != 2 {
		t.Errorf("Version = %d, want 2", baselines[0].Version)
	}
}

func TestEngine_Snapshot_CommandFailure_SkipsDeviceButContinues(t *testing.T) {
	exec := &fakeExecutor{
		records: map[string][]model.Record{"d2/interfaces": {{"name": "Gi0/1"}}},
		failing: map[string]bool{"d1/interfaces": true},
	}
	store := newFakeStore()
	e := New(exec, store)

	baselines, err := e.Snapshot(context.Background(), []string{"d1", "d2"}, []string{parser.EndpointInterfaces}, "alice", "")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(baselines) != 1 {
		t.Fatalf("baselines = %+v, want 1 (d1's failing command is skipped, not fatal)", baselines)
	}
}

func TestNormalizeRecords_DropsVolatileFields(t *testing.T) {
	records := []model.Record{{"interface_name": "Gi0/1", "age": "3", "ip": "10.0.0.1"}}
	normalized := normalizeRecords(parser.EndpointIPArp, records)
	if _, ok := normalized[0]["age"]; ok {
		t.Error("age field should be dropped for ip-arp normalization")
	}
	if normalized[0]["ip"] != "10.0.0.1" {
		t.Error("non-dropped fields should survive normalization")
	}
}

func TestNormalizeRecords_SortsByPrimaryKey(t *testing.T) {
	records := []model.Record{{"name": "Gi0/2"}, {"name": "Gi0/1"}}
	normalized := normalizeRecords(parser.EndpointInterfaces, records)
	if normalized[0]["name"] != "Gi0/1" || normalized[1]["name"] != "Gi0/2" {
		t.Errorf("normalized order = %v, want sorted by name", normalized)
	}
}

func TestDiff_DetectsAddedRemovedChanged(t *testing.T) {
	exec := &fakeExecutor{}
	store := newFakeStore()
	e := New(exec, store)
	e.Now = func() time.Time { return time.Now() }

	exec.records = map[string][]model.Record{
		"d1/interfaces": {
			{"name": "Gi0/1", "status": "up", "description": "Uplink"},
			{"name": "Gi0/2", "status": "up"},
		},
	}
	v1, _ := e.Snapshot(context.Background(), []string{"d1"}, []string{parser.EndpointInterfaces}, "alice", "v1")

	exec.records = map[string][]model.Record{
		"d1/interfaces": {
			{"name": "Gi0/1", "status": "down", "description": "Uplink"},
			{"name": "Gi0/3", "status": "up"},
		},
	}
	v2, _ := e.Snapshot(context.Background(), []string{"d1"}, []string{parser.EndpointInterfaces}, "alice", "v2")

	diff, err := Diff(parser.EndpointInterfaces, v1[0], v2[0])
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(diff.Added) != 1 || diff.Added[0] != "Gi0/3" {
		t.Errorf("Added = %v, want [Gi0/3]", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != "Gi0/2" {
		t.Errorf("Removed = %v, want [Gi0/2]", diff.Removed)
	}
	if len(diff.Changed) != 1 || diff.Changed[0].Key != "Gi0/1" {
		t.Fatalf("Changed = %+v, want one entry for Gi0/1", diff.Changed)
	}
	statusChange, ok := diff.Changed[0].Fields["status"]
	if !ok || statusChange.Old != "up" || statusChange.New != "down" {
		t.Errorf("status change = %+v, want up->down", statusChange)
	}
}

func TestDiff_CounterFieldChangeDoesNotAppearInDiff(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{records: map[string][]model.Record{
		"d1/ip-arp": {{"address": "10.0.0.1", "mac_address": "aabb.ccdd.1122", "age": "1"}},
	}}
	e := New(exec, store)
	v1, _ := e.Snapshot(context.Background(), []string{"d1"}, []string{parser.EndpointIPArp}, "alice", "")

	exec.records["d1/ip-arp"] = []model.Record{{"address": "10.0.0.1", "mac_address": "aabb.ccdd.1122", "age": "99"}}
	v2, _ := e.Snapshot(context.Background(), []string{"d1"}, []string{parser.EndpointIPArp}, "alice", "")

	diff, err := Diff(parser.EndpointIPArp, v1[0], v2[0])
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(diff.Changed) != 0 {
		t.Errorf("Changed = %+v, want none (age is a drop-listed counter field)", diff.Changed)
	}
}
