// Package baseline implements the configuration-drift engine (C12):
// point-in-time, normalized snapshots of parsed command output per device,
// versioned per (device, command), with a diff operation over normalized
// pairs. Grounded on the teacher's pkg/audit event shape (a versioned,
// timestamped record of what happened), adapted from an audit trail to a
// drift-detection snapshot store.
package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nocauto/noc-engine/pkg/audit"
	"github.com/nocauto/noc-engine/pkg/discovery"
	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

// Executor runs one (device, endpoint) command, as satisfied by pkg/executor.
type Executor interface {
	Run(ctx context.Context, deviceID, endpoint string, opts ExecutorOptions) (*ExecutorResult, error)
}

// ExecutorOptions mirrors the executor's Options for attribution.
type ExecutorOptions struct {
	OwnerUser string
}

// ExecutorResult mirrors the executor's CommandResult fields this package
// needs.
type ExecutorResult struct {
	Records []model.Record
}

// Store is the narrow read/write view over the Baseline table.
type Store interface {
	GetBaseline(ctx context.Context, deviceID, command string) (*model.Baseline, error)
	SaveBaseline(ctx context.Context, b *model.Baseline) error
}

// Engine snapshots and diffs baselines.
type Engine struct {
	Executor Executor
	Store    Store
	Now      func() time.Time
}

// New returns an Engine backed by exec and store.
func New(exec Executor, store Store) *Engine {
	return &Engine{Executor: exec, Store: store, Now: time.Now}
}

// Snapshot runs each endpoint against each device, storing a versioned
// baseline per (device, endpoint) pair. Endpoints defaults to the full
// command order when nil/empty. A command that fails to execute is logged
// and skipped rather than aborting the whole snapshot.
func (e *Engine) Snapshot(ctx context.Context, deviceIDs, endpoints []string, ownerUser, notes string) ([]*model.Baseline, error) {
	endpoints = discovery.FilterEndpoints(endpoints)

	var out []*model.Baseline
	for _, deviceID := range deviceIDs {
		for _, endpoint := range endpoints {
			result, err := e.Executor.Run(ctx, deviceID, endpoint, ExecutorOptions{OwnerUser: ownerUser})
			if err != nil {
				util.WithFields(map[string]interface{}{
					"device_id": deviceID, "command": endpoint, "error": err.Error(),
				}).Warn("baseline snapshot command failed, skipping")
				continue
			}

			b, err := e.snapshotOne(ctx, deviceID, endpoint, result.Records, notes)
			if err != nil {
				return nil, err
			}
			audit.Log(audit.NewEvent(audit.EventTypeBaselineSnapshot, ownerUser, deviceID).
				WithCommand(endpoint).
				WithMessage(fmt.Sprintf("baseline version %d", b.Version)).
				WithSuccess())
			out = append(out, b)
		}
	}
	return out, nil
}

func (e *Engine) snapshotOne(ctx context.Context, deviceID, command string, records []model.Record, notes string) (*model.Baseline, error) {
	rawBytes, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal raw output: %w", err)
	}
	normalizedBytes, err := json.Marshal(normalizeRecords(command, records))
	if err != nil {
		return nil, fmt.Errorf("marshal normalized output: %w", err)
	}

	existing, err := e.Store.GetBaseline(ctx, deviceID, command)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	var b *model.Baseline
	if existing != nil {
		b = existing
		b.Version++
		b.RawOutput = string(rawBytes)
		b.NormalizedOutput = string(normalizedBytes)
		b.Notes = notes
		b.UpdatedAt = now
	} else {
		b = &model.Baseline{
			ID:               uuid.NewString(),
			DeviceID:         deviceID,
			Command:          command,
			Version:          1,
			RawOutput:        string(rawBytes),
			NormalizedOutput: string(normalizedBytes),
			Notes:            notes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	if err := e.Store.SaveBaseline(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// FieldChange is one field's old/new value pair within a changed record.
type FieldChange struct {
	Old string
	New string
}

// ChangedRecord is one record present in both baselines with at least one
// differing field.
type ChangedRecord struct {
	Key    string
	Fields map[string]FieldChange
}

// DiffResult is the outcome of comparing two baselines' normalized output.
type DiffResult struct {
	Added   []string
	Removed []string
	Changed []ChangedRecord
}

// Diff compares a's and b's normalized output, keyed by endpoint's primary
// key field.
func Diff(endpoint string, a, b *model.Baseline) (*DiffResult, error) {
	var recordsA, recordsB []model.Record
	if err := json.Unmarshal([]byte(a.NormalizedOutput), &recordsA); err != nil {
		return nil, fmt.Errorf("unmarshal baseline a: %w", err)
	}
	if err := json.Unmarshal([]byte(b.NormalizedOutput), &recordsB); err != nil {
		return nil, fmt.Errorf("unmarshal baseline b: %w", err)
	}

	mapA := keyByPrimary(endpoint, recordsA)
	mapB := keyByPrimary(endpoint, recordsB)

	result := &DiffResult{}
	for key := range mapB {
		if _, ok := mapA[key]; !ok {
			result.Added = append(result.Added, key)
		}
	}
	for key := range mapA {
		if _, ok := mapB[key]; !ok {
			result.Removed = append(result.Removed, key)
		}
	}
	for key, recA := range mapA {
		recB, ok := mapB[key]
		if !ok {
			continue
		}
		if fields := diffFields(recA, recB); len(fields) > 0 {
			result.Changed = append(result.Changed, ChangedRecord{Key: key, Fields: fields})
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Slice(result.Changed, func(i, j int) bool { return result.Changed[i].Key < result.Changed[j].Key })
	return result, nil
}

func keyByPrimary(endpoint string, records []model.Record) map[string]model.Record {
	out := make(map[string]model.Record, len(records))
	for _, r := range records {
		key := PrimaryKey(endpoint, r)
		if key == "" {
			continue
		}
		out[key] = r
	}
	return out
}

func diffFields(a, b model.Record) map[string]FieldChange {
	keys := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}

	out := make(map[string]FieldChange)
	for k := range keys {
		va := fmt.Sprint(a[k])
		vb := fmt.Sprint(b[k])
		if a[k] == nil {
			va = ""
		}
		if b[k] == nil {
			vb = ""
		}
		if va != vb {
			out[k] = FieldChange{Old: va, New: vb}
		}
	}
	return out
}
