// Package backfill re-exports the current records of an entity as a series
// of independently processed pages.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/fieldship/internal/governance"
	"github.com/alfredjeanlab/fieldship/internal/idgen"
	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/store"
)

// DefaultBatchSize is used when Run is given a non-positive batch size.
const DefaultBatchSize = 200

// ErrUngoverned is returned for entities that no governance list names.
var ErrUngoverned = errors.New("entity is not governed")

var tracer = otel.Tracer("github.com/alfredjeanlab/fieldship/internal/backfill")

// BatchQueue schedules page jobs for asynchronous processing.
type BatchQueue interface {
	EnqueueBatch(ctx context.Context, job model.BatchJob) error
}

// RunRecorder persists a ledger entry for each scheduled run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run model.BackfillRun) error
}

// Page is one contiguous window of a backfill.
type Page struct {
	Index  int
	Offset int
	Limit  int
}

// Pages splits [0, total) into ceil(total/batchSize) contiguous windows.
// The last window holds the remainder when total is not a multiple of
// batchSize.
func Pages(total, batchSize int) []Page {
	if total <= 0 || batchSize <= 0 {
		return nil
	}
	n := (total + batchSize - 1) / batchSize
	pages := make([]Page, n)
	for i := range pages {
		offset := i * batchSize
		pages[i] = Page{Index: i, Offset: offset, Limit: min(batchSize, total-offset)}
	}
	return pages
}

// Orchestrator counts an entity's records and schedules one job per page.
type Orchestrator struct {
	registry *governance.Registry
	source   store.Source
	queue    BatchQueue
	recorder RunRecorder
	logger   *slog.Logger

	newID func() (string, error)
	now   func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRecorder records every scheduled run in a ledger.
func WithRecorder(r RunRecorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(registry *governance.Registry, source store.Source, queue BatchQueue, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		source:   source,
		queue:    queue,
		logger:   logger,
		newID:    idgen.NewRunID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run schedules a backfill of entity and returns once every page is
// enqueued. It does not wait for the pages to be processed. An entity with
// no records schedules nothing.
func (o *Orchestrator) Run(ctx context.Context, entity string, batchSize int) (run model.BackfillRun, err error) {
	ctx, span := tracer.Start(ctx, "backfill.Run", trace.WithAttributes(attribute.String("entity", entity)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !o.registry.Verified() {
		return model.BackfillRun{}, governance.ErrUnverified
	}
	if !o.registry.IsGoverned(entity) {
		return model.BackfillRun{}, fmt.Errorf("%w: %s", ErrUngoverned, entity)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total, err := o.source.Count(ctx, entity)
	if err != nil {
		return model.BackfillRun{}, fmt.Errorf("backfill %s: %w", entity, err)
	}
	pages := Pages(total, batchSize)

	id, err := o.newID()
	if err != nil {
		return model.BackfillRun{}, err
	}
	run = model.BackfillRun{
		ID:           id,
		Entity:       entity,
		BatchSize:    batchSize,
		TotalRecords: total,
		TotalBatches: len(pages),
		StartedAt:    o.now().UTC(),
	}
	span.SetAttributes(attribute.String("run_id", id), attribute.Int("total_batches", len(pages)))

	if o.recorder != nil {
		if err := o.recorder.RecordRun(ctx, run); err != nil {
			return run, err
		}
	}

	for _, p := range pages {
		job := model.BatchJob{
			RunID:        run.ID,
			Entity:       entity,
			BatchIndex:   p.Index,
			Offset:       p.Offset,
			Limit:        p.Limit,
			TotalBatches: len(pages),
		}
		if err := o.queue.EnqueueBatch(ctx, job); err != nil {
			return run, fmt.Errorf("enqueue page %d/%d of %s: %w", p.Index+1, len(pages), entity, err)
		}
	}

	o.logger.Info("backfill scheduled",
		"entity", entity,
		"run_id", run.ID,
		"total_records", total,
		"total_batches", len(pages),
		"batch_size", batchSize,
	)
	return run, nil
}
