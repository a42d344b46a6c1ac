package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/fieldship/internal/events"
	"github.com/alfredjeanlab/fieldship/internal/governance"
	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/store"
)

// memSource is an in-memory store.Source. Records are kept in primary key
// order.
type memSource struct {
	columns map[string][]string
	records map[string][]model.Record
	windows int
}

func (m *memSource) Entities(_ context.Context) ([]string, error) {
	var out []string
	for e := range m.columns {
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memSource) Attributes(_ context.Context, entity string) ([]string, error) {
	return m.columns[entity], nil
}

func (m *memSource) Count(_ context.Context, entity string) (int, error) {
	return len(m.records[entity]), nil
}

func (m *memSource) Window(_ context.Context, entity string, offset, limit int) ([]model.Record, error) {
	m.windows++
	recs := m.records[entity]
	if offset >= len(recs) {
		return nil, nil
	}
	return recs[offset:min(offset+limit, len(recs))], nil
}

func (m *memSource) Get(_ context.Context, entity, id string) (model.Record, error) {
	for _, r := range m.records[entity] {
		if fmt.Sprint(r["id"]) == id {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memSource) Close() error { return nil }

// recordingDispatcher keeps every Send call.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls [][]model.Event
	err   error
}

func (d *recordingDispatcher) Send(_ context.Context, evs []model.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, append([]model.Event(nil), evs...))
	return nil
}

type jobCollector struct {
	jobs []model.BatchJob
	err  error
}

func (c *jobCollector) EnqueueBatch(_ context.Context, job model.BatchJob) error {
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, job)
	return nil
}

type ledger struct {
	runs []model.BackfillRun
}

func (l *ledger) RecordRun(_ context.Context, run model.BackfillRun) error {
	l.runs = append(l.runs, run)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

// candidateSource holds n candidates with sequential ids.
func candidateSource(n int) *memSource {
	src := &memSource{
		columns: map[string][]string{"candidates": {"id", "email_address", "password_digest"}},
		records: map[string][]model.Record{"candidates": nil},
	}
	for i := 1; i <= n; i++ {
		src.records["candidates"] = append(src.records["candidates"], model.Record{
			"id":              int64(i),
			"email_address":   fmt.Sprintf("user%d@example.com", i),
			"password_digest": "secret",
		})
	}
	return src
}

func candidateLists() governance.Lists {
	return governance.Lists{
		Export:    governance.EntityFields{"candidates": {"id", "email_address"}},
		Blocklist: governance.EntityFields{"candidates": {"password_digest"}},
	}
}

// verifiedRegistry returns a registry that passed its check against src.
func verifiedRegistry(t *testing.T, lists governance.Lists, src *memSource) *governance.Registry {
	t.Helper()
	reg := governance.NewRegistry(lists)
	if err := reg.Check(context.Background(), src); err != nil {
		t.Fatalf("governance check: %v", err)
	}
	return reg
}

func newTestBuilder(reg *governance.Registry) *events.Builder {
	return events.NewBuilder(reg, governance.NewAnonymizer(""), "test",
		events.WithClock(func() time.Time { return fixedNow }))
}

func sequentialIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("run-%d", n), nil
	}
}

var errBoom = errors.New("boom")
