// Package events turns raw records into privacy-safe analytics events.
package events

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/alfredjeanlab/fieldship/internal/governance"
	"github.com/alfredjeanlab/fieldship/internal/model"
)

// Marker data keys.
const (
	MarkerRunID        = "run_id"
	MarkerTotalBatches = "total_batches"
)

// Builder constructs events from attribute maps, keeping only governed
// attributes and anonymizing PII.
type Builder struct {
	registry    *governance.Registry
	anonymizer  governance.Anonymizer
	environment string
	identify    UserIdentifier
	now         func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithUserIdentifier sets the function that resolves user_id.
func WithUserIdentifier(fn UserIdentifier) Option {
	return func(b *Builder) { b.identify = fn }
}

// WithClock overrides the capture clock.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a builder for the given environment.
func NewBuilder(registry *governance.Registry, anonymizer governance.Anonymizer, environment string, opts ...Option) *Builder {
	b := &Builder{
		registry:    registry,
		anonymizer:  anonymizer,
		environment: environment,
		identify:    DefaultUserIdentifier,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the event for one record. Attributes that are not exported
// are dropped without error; PII values are replaced by their tokens.
func (b *Builder) Build(ctx context.Context, entity string, typ model.EventType, attrs map[string]any) (model.Event, error) {
	if !b.registry.Verified() {
		return model.Event{}, governance.ErrUnverified
	}
	if !typ.IsValid() {
		return model.Event{}, fmt.Errorf("unknown event type %q", typ)
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make([]model.DataPair, 0, len(keys))
	for _, k := range keys {
		class := b.registry.Classify(entity, k)
		if !class.Exported() {
			continue
		}
		values := serialize(attrs[k])
		if len(values) == 0 {
			continue
		}
		if class == model.ClassExportPII {
			for i, v := range values {
				values[i] = b.anonymizer.Anonymize(v)
			}
		}
		data = append(data, model.DataPair{Key: k, Value: values})
	}

	return b.envelope(ctx, entity, typ, data), nil
}

// Marker returns the import_completed event that closes a backfill run.
func (b *Builder) Marker(ctx context.Context, entity, runID string, totalBatches int) (model.Event, error) {
	if !b.registry.Verified() {
		return model.Event{}, governance.ErrUnverified
	}
	data := []model.DataPair{
		{Key: MarkerRunID, Value: []string{runID}},
		{Key: MarkerTotalBatches, Value: []string{strconv.Itoa(totalBatches)}},
	}
	return b.envelope(ctx, entity, model.EventImportCompleted, data), nil
}

func (b *Builder) envelope(ctx context.Context, entity string, typ model.EventType, data []model.DataPair) model.Event {
	ev := model.Event{
		Environment: b.environment,
		EntityName:  entity,
		EventType:   typ,
		OccurredAt:  b.now().UTC(),
		Data:        data,
	}
	if id, ok := RequestUUID(ctx); ok {
		ev.RequestUUID = id
	}
	if user, ok := User(ctx); ok && b.identify != nil {
		if id, ok := b.identify(user); ok {
			ev.UserID = id
		}
	}
	return ev
}
