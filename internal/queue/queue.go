// Package queue is the durable job queue that runs backfill pages and
// asynchronous dispatches. Delivery is at-least-once: handlers must tolerate
// running the same job more than once.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// Job subjects.
const (
	SubjectBatch    = "fieldship.jobs.batch"
	SubjectDispatch = "fieldship.jobs.dispatch"
	subjectAll      = "fieldship.jobs.>"
)

// Options tunes the stream and the consumer.
type Options struct {
	Stream     string        // stream name (default "FIELDSHIP_JOBS")
	Consumer   string        // durable consumer name (default "fieldship-workers")
	MaxDeliver int           // delivery attempts per job (default 5)
	AckWait    time.Duration // time a worker holds a job before redelivery (default 5m)
	RetryDelay time.Duration // base delay before a failed job is redelivered (default 5s)
}

func (o Options) withDefaults() Options {
	if o.Stream == "" {
		o.Stream = "FIELDSHIP_JOBS"
	}
	if o.Consumer == "" {
		o.Consumer = "fieldship-workers"
	}
	if o.MaxDeliver <= 0 {
		o.MaxDeliver = 5
	}
	if o.AckWait <= 0 {
		o.AckWait = 5 * time.Minute
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	return o
}

// Queue is a NATS JetStream work queue.
type Queue struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	opts   Options
	logger *slog.Logger
}

// Open connects to NATS at url and creates or updates the job stream.
func Open(ctx context.Context, url string, opts Options, logger *slog.Logger) (*Queue, error) {
	opts = opts.withDefaults()
	nc, err := nats.Connect(url,
		nats.Name("fieldship"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      opts.Stream,
		Subjects:  []string{subjectAll},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating stream %s: %w", opts.Stream, err)
	}
	return &Queue{conn: nc, js: js, stream: stream, opts: opts, logger: logger}, nil
}

// EnqueueBatch schedules one backfill page.
func (q *Queue) EnqueueBatch(ctx context.Context, job model.BatchJob) error {
	return q.publish(ctx, SubjectBatch, job)
}

// EnqueueDispatch schedules delivery of a batch of events.
func (q *Queue) EnqueueDispatch(ctx context.Context, events []model.Event) error {
	return q.publish(ctx, SubjectDispatch, events)
}

func (q *Queue) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Run consumes jobs with at most concurrency handlers in flight and blocks
// until ctx is cancelled. Jobs already running when ctx ends are allowed to
// finish.
func (q *Queue) Run(ctx context.Context, h Handlers, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	cons, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       q.opts.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.opts.AckWait,
		MaxDeliver:    q.opts.MaxDeliver,
		FilterSubject: subjectAll,
	})
	if err != nil {
		return fmt.Errorf("creating consumer %s: %w", q.opts.Consumer, err)
	}

	jobCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(concurrency)

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		g.Go(func() error {
			q.process(jobCtx, h, msg)
			return nil
		})
	}, jetstream.PullMaxMessages(concurrency))
	if err != nil {
		return fmt.Errorf("consuming %s: %w", q.opts.Stream, err)
	}
	q.logger.Info("queue: consuming jobs", "stream", q.opts.Stream, "concurrency", concurrency)

	<-ctx.Done()
	cc.Stop()
	q.logger.Info("queue: waiting for running jobs")
	return g.Wait()
}

func (q *Queue) process(ctx context.Context, h Handlers, msg jetstream.Msg) {
	var attempt uint64 = 1
	if meta, err := msg.Metadata(); err == nil {
		attempt = meta.NumDelivered
	}

	err := h.handle(ctx, msg.Subject(), msg.Data())
	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			q.logger.Error("queue: ack failed", "subject", msg.Subject(), "err", err)
		}
	case errors.Is(err, ErrUndeliverable) || model.IsPermanent(err):
		q.logger.Error("queue: job failed permanently", "subject", msg.Subject(), "attempt", attempt, "err", err)
		_ = msg.Term()
	default:
		if attempt >= uint64(q.opts.MaxDeliver) {
			q.logger.Error("queue: job failed, no attempts left", "subject", msg.Subject(), "attempt", attempt, "err", err)
			_ = msg.Term()
			return
		}
		delay := q.opts.RetryDelay * time.Duration(attempt)
		q.logger.Warn("queue: job failed, will retry", "subject", msg.Subject(), "attempt", attempt, "delay", delay, "err", err)
		_ = msg.NakWithDelay(delay)
	}
}

// Close drains the connection.
func (q *Queue) Close() error {
	return q.conn.Drain()
}
