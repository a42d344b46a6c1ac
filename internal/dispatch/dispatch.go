// Package dispatch hands finished events to the analytics sink, either
// directly or through the job queue.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/sink"
)

var tracer = otel.Tracer("github.com/alfredjeanlab/fieldship/internal/dispatch")

// Sink transmits a batch of events to the analytics store.
type Sink interface {
	Send(ctx context.Context, events []model.Event) error
}

// Enqueuer defers a batch to a background dispatch job.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, events []model.Event) error
}

// Settings selects the dispatch path.
type Settings struct {
	// LogOnly writes events to the log and nothing else. It takes
	// precedence over Async.
	LogOnly bool
	// Async hands batches to the job queue instead of transmitting inline.
	Async bool
}

// Dispatcher routes event batches according to its settings.
type Dispatcher struct {
	settings Settings
	sink     Sink
	queue    Enqueuer
	log      Sink
	logger   *slog.Logger
}

// New creates a dispatcher. sink may be nil in log-only mode and queue may be
// nil when Async is off.
func New(settings Settings, s Sink, queue Enqueuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		settings: settings,
		sink:     s,
		queue:    queue,
		log:      sink.NewLogSink(logger),
		logger:   logger,
	}
}

// Send dispatches events. The slice is never modified. Failures are
// *model.DispatchFailure.
func (d *Dispatcher) Send(ctx context.Context, events []model.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "dispatch.Send", trace.WithAttributes(
		attribute.Int("events", len(events)),
		attribute.Bool("log_only", d.settings.LogOnly),
		attribute.Bool("async", d.settings.Async),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	switch {
	case d.settings.LogOnly:
		return d.log.Send(ctx, events)
	case d.settings.Async:
		if d.queue == nil {
			return &model.DispatchFailure{Events: len(events), Permanent: true, Cause: errors.New("no job queue configured")}
		}
		if err := d.queue.EnqueueDispatch(ctx, events); err != nil {
			return wrap(len(events), err)
		}
		d.logger.Debug("dispatch: enqueued", "events", len(events))
		return nil
	default:
		return d.Deliver(ctx, events)
	}
}

// Deliver transmits events through the sink synchronously, ignoring the
// Async setting. The dispatch job handler calls it. LogOnly still applies.
func (d *Dispatcher) Deliver(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	if d.settings.LogOnly {
		return d.log.Send(ctx, events)
	}
	if d.sink == nil {
		return &model.DispatchFailure{Events: len(events), Permanent: true, Cause: errors.New("no sink configured")}
	}
	if err := d.sink.Send(ctx, events); err != nil {
		d.logger.Warn("dispatch: delivery failed", "events", len(events), "permanent", model.IsPermanent(err), "err", err)
		return wrap(len(events), err)
	}
	d.logger.Debug("dispatch: delivered", "events", len(events))
	return nil
}

func wrap(n int, err error) error {
	var df *model.DispatchFailure
	if errors.As(err, &df) {
		return err
	}
	return &model.DispatchFailure{Events: n, Cause: err}
}
