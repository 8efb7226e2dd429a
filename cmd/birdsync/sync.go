package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgebird/birdsync/internal/artifact"
	"github.com/edgebird/birdsync/internal/checkpoint"
	"github.com/edgebird/birdsync/internal/cloud"
	"github.com/edgebird/birdsync/internal/config"
	"github.com/edgebird/birdsync/internal/daemon"
	"github.com/edgebird/birdsync/internal/detections"
	"github.com/edgebird/birdsync/internal/hostid"
	"github.com/edgebird/birdsync/internal/logging"
	"github.com/edgebird/birdsync/internal/sync"
)

func runSync(cmd *cobra.Command, args []string) error {
	daemonMode, _ := cmd.Flags().GetBool("daemon")
	sleepMinutes, _ := cmd.Flags().GetInt("sleep")
	if sleepMinutes <= 0 {
		return errors.New("--sleep must be a positive number of minutes")
	}

	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings:\n%w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext(logger)
	defer stop()

	deviceID := hostid.Resolve(cfg.DeviceID)
	logger.Info("birdsync starting",
		zap.String("version", Version),
		zap.String("device_id", deviceID),
		zap.String("db_path", cfg.DBPath),
		zap.String("upload_dir", cfg.UploadDir),
		zap.Bool("daemon", daemonMode))

	source, err := detections.Open(cfg.DBPath, deviceID)
	if err != nil {
		logger.Error("failed to open detections database", zap.Error(err))
		return reported(err)
	}
	defer source.Close()

	client := cloud.NewClient(cloud.ClientConfig{
		DetectionURL: cfg.SpeciesIDPostURL,
		ArtifactURL:  cfg.AudioPostURL,
		Timeout:      cfg.HTTPTimeout,
		UserAgent:    "birdsync/" + Version,
	})

	sink, err := artifactSink(ctx, cfg, client)
	if err != nil {
		logger.Error("failed to set up audio upload", zap.Error(err))
		return reported(err)
	}

	engine := sync.New(
		checkpoint.NewStore(cfg.UploadDir, cfg.ResetDays, logger.Named("checkpoint")),
		source,
		client,
		artifact.New(cfg.UploadDir, sink, logger.Named("artifact")),
		sync.Config{
			BatchLimit: cfg.BatchLimit,
			Logger:     logger.Named("sync"),
		},
	)

	dcfg := &daemon.Config{
		Interval: time.Duration(sleepMinutes) * time.Minute,
		Schedule: cfg.Schedule,
		Logger:   logger.Named("daemon"),
	}
	if cfg.WatchDB {
		dcfg.WatchPath = cfg.DBPath
	}
	d, err := daemon.New(engine, dcfg)
	if err != nil {
		logger.Error("failed to create daemon", zap.Error(err))
		return reported(err)
	}

	if daemonMode {
		err = d.Start(ctx)
	} else {
		err = d.RunOnce(ctx)
	}
	if err != nil {
		logger.Error("sync stopped", zap.Error(err))
		return reported(err)
	}
	return nil
}

// artifactSink picks where audio clips go.
func artifactSink(ctx context.Context, cfg config.Config, client *cloud.Client) (artifact.Sink, error) {
	if cfg.Artifact.Backend != config.BackendS3 {
		return client, nil
	}
	return cloud.NewS3Sink(ctx, cloud.S3Config{
		Bucket:   cfg.Artifact.S3Bucket,
		Prefix:   cfg.Artifact.S3Prefix,
		Region:   cfg.Artifact.S3Region,
		Endpoint: cfg.Artifact.S3Endpoint,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM, after logging which
// signal arrived.
func signalContext(logger *zap.Logger) (context.Context, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := cancelOnSignal(logger, sigCh)
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func cancelOnSignal(logger *zap.Logger, sigCh <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case sig := <-sigCh:
			// In-flight requests share ctx and are aborted; their records
			// stay behind the checkpoint and go out on the next run.
			logger.Warn("shutdown requested, stopping, in-flight upload will be retried", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
