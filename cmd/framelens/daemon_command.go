package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"framelens/internal/blobstore"
	"framelens/internal/config"
	"framelens/internal/daemon"
	"framelens/internal/jobstore"
	"framelens/internal/logging"
	"framelens/internal/pipeline"
	"framelens/internal/telemetry"
	"framelens/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the processing daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runDaemon(cmd, cfg, logLevel)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override configured log level")
	return cmd
}

func runDaemon(cmd *cobra.Command, cfg *config.Config, logLevel string) error {
	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       logLevel,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", daemonLogPath(cfg)},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := jobstore.Open(signalCtx, cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}

	var sink pipeline.ArtifactSink
	if cfg.BlobConfigured() {
		blob, err := blobstore.New(cfg)
		if err != nil {
			return fmt.Errorf("connect blob sink: %w", err)
		}
		if err := blob.EnsureBucket(signalCtx); err != nil {
			logger.Warn("blob bucket unavailable, uploads will fail",
				logging.Error(err))
		}
		sink = blob
	}

	pipe := pipeline.New(cfg, store, sink, logger)
	wf := workflow.NewManager(cfg, store, pipe, logger)
	metrics := telemetry.NewServer(cfg.Telemetry.MetricsBind, logger)

	d, err := daemon.New(cfg, store, logger, wf, metrics)
	if err != nil {
		store.Close()
		return err
	}
	if err := d.Start(signalCtx); err != nil {
		store.Close()
		return err
	}

	<-signalCtx.Done()
	logger.Info("shutdown signal received")
	return d.Close(cmd.Context())
}
