package backfill

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/fieldship/internal/events"
	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/store"
)

// Dispatcher sends one batch of events.
type Dispatcher interface {
	Send(ctx context.Context, events []model.Event) error
}

// Worker processes a single page job.
type Worker struct {
	source     store.Source
	builder    *events.Builder
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewWorker creates a page worker.
func NewWorker(source store.Source, builder *events.Builder, dispatcher Dispatcher, logger *slog.Logger) *Worker {
	return &Worker{source: source, builder: builder, dispatcher: dispatcher, logger: logger}
}

// Process re-fetches the job's window, dispatches one import_entity event per
// record in a single call and, on the last page, follows it with the
// import_completed marker in a second call. Repeating Process for the same
// job yields the same event content.
func (w *Worker) Process(ctx context.Context, job model.BatchJob) (err error) {
	ctx, span := tracer.Start(ctx, "backfill.Process", trace.WithAttributes(
		attribute.String("entity", job.Entity),
		attribute.String("run_id", job.RunID),
		attribute.Int("batch_index", job.BatchIndex),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	records, err := w.source.Window(ctx, job.Entity, job.Offset, job.Limit)
	if err != nil {
		return fmt.Errorf("page %d of %s: %w", job.BatchIndex, job.Entity, err)
	}

	batch := make([]model.Event, 0, len(records))
	for _, rec := range records {
		ev, err := w.builder.Build(ctx, job.Entity, model.EventImportEntity, rec)
		if err != nil {
			return fmt.Errorf("page %d of %s: %w", job.BatchIndex, job.Entity, err)
		}
		batch = append(batch, ev)
	}

	if len(batch) > 0 {
		if err := w.dispatcher.Send(ctx, batch); err != nil {
			return err
		}
	}

	if job.IsLast() {
		marker, err := w.builder.Marker(ctx, job.Entity, job.RunID, job.TotalBatches)
		if err != nil {
			return err
		}
		if err := w.dispatcher.Send(ctx, []model.Event{marker}); err != nil {
			return err
		}
	}

	w.logger.Debug("backfill page processed",
		"entity", job.Entity,
		"run_id", job.RunID,
		"batch_index", job.BatchIndex,
		"events", len(batch),
		"last", job.IsLast(),
	)
	return nil
}
