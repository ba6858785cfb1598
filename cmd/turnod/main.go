// Command turnod runs the turno workflow engine as an HTTP service
// hosting the HR orchestration definitions.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/petrijr/turno/internal/engine"
	"github.com/petrijr/turno/internal/httpapi"
	"github.com/petrijr/turno/internal/persistence"
	"github.com/petrijr/turno/internal/taskqueue"
	"github.com/petrijr/turno/pkg/api"
	"github.com/petrijr/turno/pkg/config"
	"github.com/petrijr/turno/pkg/hrflow"
	"github.com/petrijr/turno/pkg/worker"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "turnod",
		Short: "Durable workflow engine for HR automation flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				cfg, err = config.Load(configPath)
				if err != nil {
					return err
				}
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	store, queue, cleanup, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	eng, err := engine.New(engine.Config{
		Persistence: store,
		Queue:       queue,
		Observer:    api.NewLoggingObserver(logger),
	})
	if err != nil {
		return err
	}

	defs := hrflow.New(hrflow.Params{
		ApprovalSLA: time.Duration(cfg.Flows.ApprovalSLAHours) * time.Hour,
	})
	if err := defs.Register(eng); err != nil {
		return err
	}
	if cfg.Flows.SimulatedActivities {
		if err := hrflow.RegisterSimulatedActivities(eng); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := eng.Rehydrate(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	if n > 0 {
		logger.Info("rehydrated running instances", slog.Int("count", n))
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		worker.Pool(workerCtx, cfg.Workers.Count, eng, queue, logger)
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.New(eng, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stopWorkers()
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}

	stopWorkers()
	<-workersDone
	return nil
}

func openBackend(cfg *config.Config) (persistence.Persistence, taskqueue.Queue, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Store.Path)
		if err != nil {
			return persistence.Persistence{}, nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		store, err := persistence.NewSQLiteStore(db)
		if err != nil {
			db.Close()
			return persistence.Persistence{}, nil, nil, err
		}
		queue, err := taskqueue.NewSQLiteQueue(db)
		if err != nil {
			db.Close()
			return persistence.Persistence{}, nil, nil, err
		}
		p := persistence.Persistence{Instances: store, History: store}
		return p, queue, func() { db.Close() }, nil

	case "memory":
		store := persistence.NewInMemoryStore()
		p := persistence.Persistence{Instances: store, History: store}
		return p, taskqueue.NewInMemoryQueue(1024), func() {}, nil

	default:
		return persistence.Persistence{}, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

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
