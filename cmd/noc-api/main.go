// noc-api serves the operator-facing HTTP API: discovery dispatch,
// topology reads, JSON-blob cache access, and scheduler CRUD.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nocauto/noc-engine/internal/app"
	"github.com/nocauto/noc-engine/pkg/audit"
	"github.com/nocauto/noc-engine/pkg/discovery"
	"github.com/nocauto/noc-engine/pkg/httpapi"
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
		Use:           "noc-api",
		Short:         "Operator HTTP API for the NOC automation engine",
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
			auditLogger, err := audit.NewFileLogger("noc-api-audit.log", audit.RotationConfig{MaxSize: 50 * 1024 * 1024, MaxBackups: 5})
			if err == nil {
				audit.SetDefaultLogger(auditLogger)
			} else {
				util.WithField("error", err).Warn("audit logger unavailable, audit events will be dropped")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.Close()
			return serve(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("noc-api %s (%s)\n", version.Version, version.GitCommit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	runner := discovery.NewRunner(app.DiscoveryExecutor{Exec: a.Executor}, int64(a.Config.WorkerConcurrency))
	orchestrator := discovery.NewOrchestrator(a.Broker)

	server := &httpapi.Server{
		Runner:       runner,
		Orchestrator: orchestrator,
		TopologyDB:   a.TopoCache,
		Blobs:        a.BlobCache,
		Baselines:    a.Baseline,
		Scheduler:    a.Scheduler,
		Settings:     a.Settings,
		Credentials:  a.Credentials,
		Metrics:      httpapi.NewMetrics(prometheus.DefaultRegisterer),
	}

	httpServer := &http.Server{
		Addr:         a.Config.HTTPAddr,
		Handler:      httpapi.NewRouter(server),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.WithField("addr", a.Config.HTTPAddr).Info("noc-api: listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		util.Logger.Info("noc-api: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case <-ctx.Done():
		return ctx.Err()
	}
}
