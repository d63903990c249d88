// noc-beat polls the scheduled_tasks table and dispatches every due task
// to its handler: discovery jobs go to the durable worker pool through the
// broker, baseline snapshots run inline since they don't need per-device
// fan-out, and cache cleanup dispatches a discovery job for stale devices.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nocauto/noc-engine/internal/app"
	"github.com/nocauto/noc-engine/pkg/audit"
	"github.com/nocauto/noc-engine/pkg/discovery"
	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/scheduler"
	"github.com/nocauto/noc-engine/pkg/util"
	"github.com/nocauto/noc-engine/pkg/version"
)

var (
	configPath string
	verbose    bool
	a          *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "noc-beat",
		Short:         "Scheduled-task poller for the NOC automation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if verbose {
				util.SetLogLevel("debug")
			}
			var err error
			a, err = app.Bootstrap(cmd.Context(), configPath)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			auditLogger, err := audit.NewFileLogger("noc-beat-audit.log", audit.RotationConfig{MaxSize: 50 * 1024 * 1024, MaxBackups: 5})
			if err == nil {
				audit.SetDefaultLogger(auditLogger)
			} else {
				util.WithField("error", err).Warn("audit logger unavailable, audit events will be dropped")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			return run(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("noc-beat %s (%s)\n", version.Version, version.GitCommit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		util.Logger.Info("noc-beat: shutting down")
		cancel()
	}()

	orchestrator := discovery.NewOrchestrator(a.Broker)
	beat := scheduler.NewBeat(a.Scheduler, &taskDispatcher{
		app:          a,
		orchestrator: orchestrator,
	})

	util.WithField("interval", beat.Interval).Info("noc-beat: starting")
	err := beat.Run(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// taskDispatcher fans a due ScheduledTask out to its concrete handler by
// task_identifier. It implements scheduler.Dispatcher.
type taskDispatcher struct {
	app          *app.App
	orchestrator *discovery.Orchestrator
}

func (d *taskDispatcher) Dispatch(ctx context.Context, taskIdentifier string, kwargs map[string]interface{}) error {
	switch taskIdentifier {
	case model.TaskDiscoverTopology:
		return d.dispatchDiscovery(ctx, kwargs)
	case model.TaskDiscoverSingleDevice:
		return d.dispatchDiscovery(ctx, kwargs)
	case model.TaskCreateBaseline:
		return d.runBaseline(ctx, kwargs)
	case model.TaskCleanupOldData:
		return d.runCleanup(ctx)
	default:
		return fmt.Errorf("scheduler: no handler registered for task identifier %q", taskIdentifier)
	}
}

func (d *taskDispatcher) dispatchDeviceIDs(ctx context.Context, kwargs map[string]interface{}) ([]string, error) {
	if ids, ok := kwargsStringSlice(kwargs, "device_ids"); ok && len(ids) > 0 {
		return ids, nil
	}
	if id, ok := kwargs["device_id"].(string); ok && id != "" {
		return []string{id}, nil
	}
	devices, err := d.app.Inventory.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(devices))
	for _, dev := range devices {
		ids = append(ids, dev.ID)
	}
	return ids, nil
}

func (d *taskDispatcher) dispatchDiscovery(ctx context.Context, kwargs map[string]interface{}) error {
	deviceIDs, err := d.dispatchDeviceIDs(ctx, kwargs)
	if err != nil {
		return fmt.Errorf("resolving device ids: %w", err)
	}
	jobID, err := d.orchestrator.Dispatch(ctx, deviceIDs)
	if err != nil {
		return err
	}
	util.WithFields(map[string]interface{}{"job_id": jobID, "device_count": len(deviceIDs)}).Info("noc-beat: dispatched discovery job")
	return nil
}

func (d *taskDispatcher) runBaseline(ctx context.Context, kwargs map[string]interface{}) error {
	deviceIDs, err := d.dispatchDeviceIDs(ctx, kwargs)
	if err != nil {
		return fmt.Errorf("resolving device ids: %w", err)
	}
	commands, _ := kwargsStringSlice(kwargs, "commands")
	username, _ := kwargs["username"].(string)
	notes, _ := kwargs["notes"].(string)
	scheduledTaskID, _ := kwargs["scheduled_task_id"].(string)

	username, err = d.app.OwnerCheck.Validate(ctx, scheduledTaskID, username)
	if err != nil {
		return fmt.Errorf("validating task owner: %w", err)
	}

	baselines, err := d.app.Baseline.Snapshot(ctx, deviceIDs, commands, username, notes)
	if err != nil {
		return err
	}
	util.WithField("baseline_count", len(baselines)).Info("noc-beat: created baselines")
	return nil
}

// runCleanup re-triggers discovery for every device whose topology cache
// has gone stale, rather than deleting rows: baselines are upserted in
// place (unique on device/command) and topology cache tables are replaced
// per device on every write, so there is no accumulated history to purge — the only "old data" is a stale snapshot
// that a fresh discovery replaces.
func (d *taskDispatcher) runCleanup(ctx context.Context) error {
	stale, err := d.app.TopoCache.StaleBefore(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	jobID, err := d.orchestrator.Dispatch(ctx, stale)
	if err != nil {
		return err
	}
	util.WithFields(map[string]interface{}{"job_id": jobID, "stale_count": len(stale)}).Info("noc-beat: refreshed stale topology cache")
	return nil
}

func kwargsStringSlice(kwargs map[string]interface{}, key string) ([]string, bool) {
	raw, ok := kwargs[key]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
