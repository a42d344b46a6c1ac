package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// ErrUndeliverable marks a job that can never succeed, such as one whose
// payload does not decode. Such jobs are dropped instead of retried.
var ErrUndeliverable = errors.New("undeliverable job")

// Handlers are the functions that execute jobs.
type Handlers struct {
	Batch    func(ctx context.Context, job model.BatchJob) error
	Dispatch func(ctx context.Context, events []model.Event) error
}

func (h Handlers) handle(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case SubjectBatch:
		if h.Batch == nil {
			return fmt.Errorf("%w: no batch handler", ErrUndeliverable)
		}
		var job model.BatchJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("%w: decoding batch job: %v", ErrUndeliverable, err)
		}
		return h.Batch(ctx, job)
	case SubjectDispatch:
		if h.Dispatch == nil {
			return fmt.Errorf("%w: no dispatch handler", ErrUndeliverable)
		}
		var events []model.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return fmt.Errorf("%w: decoding dispatch job: %v", ErrUndeliverable, err)
		}
		return h.Dispatch(ctx, events)
	}
	return fmt.Errorf("%w: unknown subject %s", ErrUndeliverable, subject)
}

// Inline runs jobs synchronously inside the enqueue call. It gives the same
// results as Queue without the durability, for local runs and tests.
type Inline struct {
	Handlers Handlers
}

// EnqueueBatch runs the batch handler immediately.
func (q *Inline) EnqueueBatch(ctx context.Context, job model.BatchJob) error {
	if q.Handlers.Batch == nil {
		return fmt.Errorf("%w: no batch handler", ErrUndeliverable)
	}
	return q.Handlers.Batch(ctx, job)
}

// EnqueueDispatch runs the dispatch handler immediately.
func (q *Inline) EnqueueDispatch(ctx context.Context, events []model.Event) error {
	if q.Handlers.Dispatch == nil {
		return fmt.Errorf("%w: no dispatch handler", ErrUndeliverable)
	}
	return q.Handlers.Dispatch(ctx, events)
}
