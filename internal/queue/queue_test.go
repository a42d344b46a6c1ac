package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// startTestNATS starts an embedded NATS server with JetStream and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(context.Background(), startTestNATS(t), Options{
		MaxDeliver: 3,
		AckWait:    5 * time.Second,
		RetryDelay: 10 * time.Millisecond,
	}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

// runQueue starts q.Run in the background and stops it at cleanup.
func runQueue(t *testing.T, q *Queue, h Handlers) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, h, 2) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not stop")
		}
	})
}

func TestQueue_BatchRoundTrip(t *testing.T) {
	q := openTestQueue(t)
	got := make(chan model.BatchJob, 1)
	runQueue(t, q, Handlers{Batch: func(_ context.Context, job model.BatchJob) error {
		got <- job
		return nil
	}})

	want := model.BatchJob{RunID: "run-1", Entity: "candidates", BatchIndex: 1, Offset: 200, Limit: 200, TotalBatches: 3}
	if err := q.EnqueueBatch(context.Background(), want); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}

	select {
	case job := <-got:
		if job != want {
			t.Fatalf("job = %+v, want %+v", job, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch job")
	}
}

func TestQueue_DispatchRoundTrip(t *testing.T) {
	q := openTestQueue(t)
	got := make(chan []model.Event, 1)
	runQueue(t, q, Handlers{Dispatch: func(_ context.Context, events []model.Event) error {
		got <- events
		return nil
	}})

	events := []model.Event{{
		Environment: "test", EntityName: "candidates", EventType: model.EventImportEntity,
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Data:       []model.DataPair{{Key: "id", Value: []string{"1"}}},
	}}
	if err := q.EnqueueDispatch(context.Background(), events); err != nil {
		t.Fatalf("EnqueueDispatch: %v", err)
	}

	select {
	case evs := <-got:
		if len(evs) != 1 || evs[0].EntityName != "candidates" || evs[0].Data[0].Value[0] != "1" {
			t.Fatalf("events = %+v", evs)
		}
		if !evs[0].OccurredAt.Equal(events[0].OccurredAt) {
			t.Fatalf("occurred_at = %v", evs[0].OccurredAt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatch job")
	}
}

func TestQueue_RetriesTransientFailures(t *testing.T) {
	q := openTestQueue(t)
	var attempts atomic.Int32
	succeeded := make(chan struct{})
	runQueue(t, q, Handlers{Batch: func(_ context.Context, _ model.BatchJob) error {
		if attempts.Add(1) < 3 {
			return errors.New("sink unavailable")
		}
		close(succeeded)
		return nil
	}})

	if err := q.EnqueueBatch(context.Background(), model.BatchJob{Entity: "candidates", TotalBatches: 1}); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	select {
	case <-succeeded:
	case <-time.After(5 * time.Second):
		t.Fatalf("job never succeeded after %d attempts", attempts.Load())
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestQueue_StopsAtMaxDeliver(t *testing.T) {
	q := openTestQueue(t)
	var attempts atomic.Int32
	runQueue(t, q, Handlers{Batch: func(_ context.Context, _ model.BatchJob) error {
		attempts.Add(1)
		return errors.New("always failing")
	}})

	if err := q.EnqueueBatch(context.Background(), model.BatchJob{Entity: "candidates", TotalBatches: 1}); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3 (MaxDeliver)", got)
	}
}

func TestQueue_PermanentFailureNotRetried(t *testing.T) {
	q := openTestQueue(t)
	var attempts atomic.Int32
	runQueue(t, q, Handlers{Batch: func(_ context.Context, _ model.BatchJob) error {
		attempts.Add(1)
		return &model.DispatchFailure{Events: 1, Permanent: true, Cause: errors.New("access denied")}
	}})

	if err := q.EnqueueBatch(context.Background(), model.BatchJob{Entity: "candidates", TotalBatches: 1}); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestQueue_PoisonPayloadDropped(t *testing.T) {
	q := openTestQueue(t)
	var mu sync.Mutex
	var seen []string
	runQueue(t, q, Handlers{Batch: func(_ context.Context, job model.BatchJob) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.Entity)
		return nil
	}})

	if _, err := q.js.Publish(context.Background(), SubjectBatch, []byte("not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.EnqueueBatch(context.Background(), model.BatchJob{Entity: "after-poison", TotalBatches: 1}); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "after-poison" {
		t.Fatalf("handled = %v, want only after-poison", seen)
	}
}

func TestQueue_OpenUnreachable(t *testing.T) {
	_, err := Open(context.Background(), "nats://127.0.0.1:1", Options{}, discardLogger())
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestHandlers_Undeliverable(t *testing.T) {
	var h Handlers
	for _, tc := range []struct {
		subject string
		data    string
	}{
		{SubjectBatch, `{}`},
		{SubjectDispatch, `[]`},
		{"fieldship.jobs.unknown", `{}`},
	} {
		if err := h.handle(context.Background(), tc.subject, []byte(tc.data)); !errors.Is(err, ErrUndeliverable) {
			t.Errorf("handle(%s) = %v, want ErrUndeliverable", tc.subject, err)
		}
	}
}

func TestInline(t *testing.T) {
	var batches, dispatches int
	q := &Inline{Handlers: Handlers{
		Batch:    func(_ context.Context, _ model.BatchJob) error { batches++; return nil },
		Dispatch: func(_ context.Context, _ []model.Event) error { dispatches++; return errors.New("boom") },
	}}
	if err := q.EnqueueBatch(context.Background(), model.BatchJob{}); err != nil {
		t.Fatalf("EnqueueBatch: %v", err)
	}
	if err := q.EnqueueDispatch(context.Background(), nil); err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if batches != 1 || dispatches != 1 {
		t.Fatalf("batches=%d dispatches=%d", batches, dispatches)
	}

	empty := &Inline{}
	if err := empty.EnqueueBatch(context.Background(), model.BatchJob{}); !errors.Is(err, ErrUndeliverable) {
		t.Fatalf("expected ErrUndeliverable, got %v", err)
	}
}
