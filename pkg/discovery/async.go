// Package discovery implements both discovery orchestrator paths: the
// request-time async fan-out (C8) in this file, and the durable
// worker-pool path (C9) in worker.go. Both call the same Executor per
// (device, command) and never re-cache its results — the cache-once
// invariant is enforced entirely inside pkg/executor.
package discovery

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

// MaxSyncDevices is the recommended hard upper bound for the synchronous
// discovery path; callers above this should use the async worker path
// instead.
const MaxSyncDevices = 5

// ErrTooManyDevices is returned by Runner.Discover when the request
// exceeds MaxSyncDevices.
var ErrTooManyDevices = fmt.Errorf("too many devices for synchronous discovery (max %d)", MaxSyncDevices)

// Executor is the narrow view of pkg/executor.Executor the discovery
// paths need.
type Executor interface {
	Run(ctx context.Context, deviceID, endpoint string, opts ExecutorOptions) (*ExecutorResult, error)
}

// ExecutorOptions mirrors executor.Options.
type ExecutorOptions struct {
	OwnerUser    string
	ForceRefresh bool
}

// ExecutorResult mirrors executor.CommandResult.
type ExecutorResult struct {
	Records   []model.Record
	FromCache bool
}

// DeviceResult is one device's outcome within an aggregated discovery run.
type DeviceResult struct {
	DeviceID string
	Success  bool
	Records  map[string][]model.Record
	Errors   map[string]string
}

// AggregateResult is the C8 synchronous discovery response.
type AggregateResult struct {
	SuccessfulDevices int
	FailedDevices     int
	Devices           []DeviceResult
}

// Runner is the C8 async (single-process, cooperative-concurrency)
// discovery path: bounded fan-out over devices via a counting semaphore,
// generalized from a "nodes in a lab" parallel-for into "devices in a
// discovery request."
type Runner struct {
	Executor    Executor
	Concurrency int64
}

// NewRunner returns a Runner with the given bounded concurrency.
func NewRunner(exec Executor, concurrency int64) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{Executor: exec, Concurrency: concurrency}
}

// Discover fans out over deviceIDs, running endpoints (in CommandOrder) on
// each, and returns one aggregated result once every device has completed
// or failed. forceRefresh bypasses the blob cache for every command, per
// the request's cache_results flag.
func (r *Runner) Discover(ctx context.Context, deviceIDs []string, endpoints []string, ownerUser string, forceRefresh bool) (*AggregateResult, error) {
	if len(deviceIDs) > MaxSyncDevices {
		return nil, ErrTooManyDevices
	}
	ordered := FilterEndpoints(endpoints)

	sem := semaphore.NewWeighted(r.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]DeviceResult, len(deviceIDs))

	for i, deviceID := range deviceIDs {
		i, deviceID := i, deviceID
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquiring discovery slot: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			dr := r.discoverDevice(ctx, deviceID, ordered, ownerUser, forceRefresh)
			mu.Lock()
			results[i] = dr
			mu.Unlock()
		}()
	}
	wg.Wait()

	agg := &AggregateResult{Devices: results}
	for _, dr := range results {
		if dr.Success {
			agg.SuccessfulDevices++
		} else {
			agg.FailedDevices++
		}
	}
	return agg, nil
}

func (r *Runner) discoverDevice(ctx context.Context, deviceID string, endpoints []string, ownerUser string, forceRefresh bool) DeviceResult {
	dr := DeviceResult{
		DeviceID: deviceID,
		Success:  true,
		Records:  make(map[string][]model.Record),
		Errors:   make(map[string]string),
	}
	for _, endpoint := range endpoints {
		res, err := r.Executor.Run(ctx, deviceID, endpoint, ExecutorOptions{OwnerUser: ownerUser, ForceRefresh: forceRefresh})
		if err != nil {
			dr.Errors[endpoint] = errorMessage(err)
			continue
		}
		dr.Records[endpoint] = res.Records
	}
	if len(dr.Errors) == len(endpoints) && len(endpoints) > 0 {
		dr.Success = false
	}
	return dr
}

func errorMessage(err error) string {
	if ce, ok := asCommandError(err); ok {
		return string(ce.Kind) + ": " + ce.Detail
	}
	return err.Error()
}

func asCommandError(err error) (*util.CommandError, bool) {
	ce, ok := err.(*util.CommandError)
	return ce, ok
}
