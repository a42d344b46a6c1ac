package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/fieldship/internal/backfill"
	"github.com/alfredjeanlab/fieldship/internal/changes"
	"github.com/alfredjeanlab/fieldship/internal/server"
	"github.com/alfredjeanlab/fieldship/internal/store/postgres"
)

var workerCmd = &cobra.Command{
	Use:     "worker",
	Short:   "Process backfill and dispatch jobs, track changes and serve health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireQueue(); err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		g, ctx := errgroup.WithContext(cmd.Context())
		health := server.NewHealthServer(logger)
		g.Go(func() error {
			return health.ListenAndServe(ctx, cfg.HealthAddr)
		})
		g.Go(func() error {
			return runWorker(ctx, g, a, health)
		})

		err = g.Wait()
		logger.Info("shutdown complete")
		return err
	},
}

// runWorker checks governance, reports SERVING, then consumes jobs until ctx
// is cancelled. The scheduler and change tracking run alongside when
// configured.
func runWorker(ctx context.Context, g *errgroup.Group, a *app, health *server.HealthServer) error {
	if err := a.check(ctx); err != nil {
		return err
	}
	if err := a.wire(ctx, false); err != nil {
		return err
	}
	health.SetServing(true)
	logger.Info("governance check passed", "governed", len(a.registry.Governed()))

	if cfg.BackfillInterval > 0 {
		o := backfill.NewOrchestrator(a.registry, a.store, a.queue, logger, backfill.WithRecorder(a.store))
		sched := backfill.NewScheduler(o, cfg.BackfillEntities, cfg.BatchSize, cfg.BackfillInterval, logger)
		sched.Start(ctx)
		defer sched.Stop()
		logger.Info("backfill scheduler started", "interval", cfg.BackfillInterval, "entities", cfg.BackfillEntities)
	}

	if len(cfg.TrackEntities) > 0 {
		tracker := changes.NewTracker(a.registry, a.store, a.builder, a.dispatcher, logger)
		for _, entity := range cfg.TrackEntities {
			if err := tracker.Register(entity); err != nil {
				return err
			}
			if err := a.store.InstallChangeTrigger(ctx, entity); err != nil {
				return err
			}
		}
		listener, err := postgres.NewChangeListener(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer listener.Close()
		g.Go(func() error {
			tracker.Listen(ctx, listener.Notify)
			return nil
		})
		logger.Info("change tracking started", "entities", tracker.Registered())
	}

	return a.queue.Run(ctx, a.handlers(), cfg.WorkerConcurrency)
}
