package main

import (
	"context"

	"github.com/alfredjeanlab/fieldship/internal/backfill"
	"github.com/alfredjeanlab/fieldship/internal/dispatch"
	"github.com/alfredjeanlab/fieldship/internal/events"
	"github.com/alfredjeanlab/fieldship/internal/governance"
	"github.com/alfredjeanlab/fieldship/internal/queue"
	"github.com/alfredjeanlab/fieldship/internal/sink"
	"github.com/alfredjeanlab/fieldship/internal/store/postgres"
)

// app holds the components shared by the commands. Fields beyond store and
// registry are only set by wire.
type app struct {
	store    *postgres.PostgresStore
	registry *governance.Registry

	builder    *events.Builder
	dispatcher *dispatch.Dispatcher
	worker     *backfill.Worker
	queue      *queue.Queue  // nil when running inline
	inline     *queue.Inline // nil when using the job queue
}

// openApp connects to the database and loads the governance lists. It does
// not run the governance check.
func openApp() (*app, error) {
	st, err := postgres.New(cfg.DatabaseURL, cfg.DatabaseSchema)
	if err != nil {
		return nil, err
	}
	lists, err := governance.LoadLists(cfg.FieldsDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &app{store: st, registry: governance.NewRegistry(lists)}, nil
}

// check runs the governance check against the live schema.
func (a *app) check(ctx context.Context) error {
	return a.registry.Check(ctx, a.store)
}

// wire builds the export pipeline. With inline set, jobs run inside the
// enqueue call instead of going through the job queue.
func (a *app) wire(ctx context.Context, inline bool) error {
	a.builder = events.NewBuilder(a.registry, governance.NewAnonymizer(cfg.PseudonymisationKey), cfg.Environment)

	var s dispatch.Sink
	if !cfg.LogOnly {
		s3, err := sink.NewS3Sink(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region, cfg.S3.Endpoint)
		if err != nil {
			return err
		}
		s = s3
	}

	var enq dispatch.Enqueuer
	if inline {
		a.inline = &queue.Inline{}
		enq = a.inline
	} else {
		if err := cfg.RequireQueue(); err != nil {
			return err
		}
		q, err := queue.Open(ctx, cfg.NATSURL, queue.Options{MaxDeliver: cfg.MaxDeliver}, logger)
		if err != nil {
			return err
		}
		a.queue = q
		enq = q
	}

	a.dispatcher = dispatch.New(dispatch.Settings{LogOnly: cfg.LogOnly, Async: cfg.Async}, s, enq, logger)
	a.worker = backfill.NewWorker(a.store, a.builder, a.dispatcher, logger)
	if a.inline != nil {
		a.inline.Handlers = a.handlers()
	}
	return nil
}

func (a *app) handlers() queue.Handlers {
	return queue.Handlers{Batch: a.worker.Process, Dispatch: a.dispatcher.Deliver}
}

// batchQueue is where the orchestrator sends page jobs.
func (a *app) batchQueue() backfill.BatchQueue {
	if a.inline != nil {
		return a.inline
	}
	return a.queue
}

func (a *app) close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			logger.Warn("closing job queue", "err", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("closing store", "err", err)
	}
}

