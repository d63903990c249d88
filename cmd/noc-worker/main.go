// noc-worker consumes durable discovery jobs from the broker, one device
// per dequeued task, running the fixed command order against each.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nocauto/noc-engine/internal/app"
	"github.com/nocauto/noc-engine/pkg/audit"
	"github.com/nocauto/noc-engine/pkg/discovery"
	"github.com/nocauto/noc-engine/pkg/util"
	"github.com/nocauto/noc-engine/pkg/version"
)

var (
	configPath string
	consumer   string
	verbose    bool
	a          *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "noc-worker",
		Short:         "Durable discovery worker for the NOC automation engine",
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
			auditLogger, err := audit.NewFileLogger("noc-worker-audit.log", audit.RotationConfig{MaxSize: 50 * 1024 * 1024, MaxBackups: 5})
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
	rootCmd.PersistentFlags().StringVar(&consumer, "consumer", defaultConsumerName(), "Broker consumer group member name")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("noc-worker %s (%s)\n", version.Version, version.GitCommit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "noc-worker"
	}
	return "noc-worker-" + host
}

func run(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		util.Logger.Info("noc-worker: shutting down")
		cancel()
	}()

	// Broker job state has no per-job owner field, so durable discovery
	// runs under the configured default admin identity rather than the
	// dispatching caller's — scheduled/ad-hoc dispatch only carries
	// device ids onto the stream, not credentials attribution.
	worker := discovery.NewWorker(a.Broker, app.DiscoveryExecutor{Exec: a.Executor}, a.Config.DefaultAdminUsername)

	util.WithField("consumer", consumer).Info("noc-worker: starting")
	err := worker.Run(ctx, consumer)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
