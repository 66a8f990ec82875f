package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/reflow-dev/reflow/internal/config"
	"github.com/reflow-dev/reflow/internal/history"
	"github.com/reflow-dev/reflow/internal/reload"
	"github.com/reflow-dev/reflow/pkg/model"
	"github.com/reflow-dev/reflow/pkg/server"
	"github.com/reflow-dev/reflow/pkg/snapshot"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		modelFile  string
		address    string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server for a model file",
		Long: `Load a YAML model document, convert it into a tracked model, and
serve it over HTTP and WebSocket. With --watch, the model file is
re-synced into the running model whenever it changes on disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if modelFile != "" {
				cfg.ModelFile = modelFile
			}
			if address != "" {
				cfg.Address = address
			}
			if cfg.ModelFile == "" {
				return fmt.Errorf("no model file: set --model or model_file in %s", config.ConfigFileName)
			}

			logger := newLogger(cfg.LogLevel)
			slog.SetDefault(logger)

			var modelOpts []model.Option
			modelOpts = append(modelOpts, model.WithLogger(logger))
			if cfg.UpdateLimit > 0 {
				modelOpts = append(modelOpts, model.WithUpdateLimit(cfg.UpdateLimit))
			}

			m, err := model.FromYAMLFile(cfg.ModelFile, modelOpts...)
			if err != nil {
				return err
			}

			var serverOpts []server.Option
			serverOpts = append(serverOpts, server.WithLogger(logger))

			if cfg.HistoryDB != "" {
				h, err := history.Open(cfg.HistoryDB)
				if err != nil {
					return err
				}
				defer h.Close()
				serverOpts = append(serverOpts, server.WithHistory(h))
			}

			store, err := snapshotStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if store != nil {
				serverOpts = append(serverOpts, server.WithSnapshots(store))
			}

			srv := server.New(m, &server.Config{
				Address:       cfg.Address,
				EnableMetrics: cfg.Metrics,
				EnableTracing: cfg.Tracing,
			}, serverOpts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				rw, err := reload.New(cfg.ModelFile, m, logger)
				if err != nil {
					return err
				}
				go func() {
					if err := rw.Run(ctx); err != nil && ctx.Err() == nil {
						logger.Error("model file watcher stopped", "error", err)
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("shutting down")
				return srv.Shutdown(context.Background())
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to reflow.yaml")
	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "Path to the model YAML document")
	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (overrides config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-sync the model when the file changes")

	return cmd
}

// snapshotStore builds the configured snapshot backend, or nil when
// snapshots are disabled.
func snapshotStore(ctx context.Context, cfg *config.Config) (snapshot.Store, error) {
	if cfg.Snapshots.Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return snapshot.NewS3Store(client, cfg.Snapshots.Bucket, cfg.Snapshots.Prefix), nil
	}
	if cfg.Snapshots.Dir != "" {
		return snapshot.NewFileStore(cfg.Snapshots.Dir)
	}
	return nil, nil
}

// newLogger builds a text slog logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
