// Package changes turns row change notifications into update_entity events.
package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/fieldship/internal/events"
	"github.com/alfredjeanlab/fieldship/internal/governance"
	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/store"
)

// Notification is the payload published by the change trigger.
type Notification struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Op     string `json:"op"`
}

// ParseNotification decodes a trigger payload.
func ParseNotification(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, fmt.Errorf("decode change notification: %w", err)
	}
	if n.Entity == "" || n.ID == "" {
		return Notification{}, fmt.Errorf("change notification missing entity or id: %q", payload)
	}
	return n, nil
}

// Dispatcher sends one batch of events.
type Dispatcher interface {
	Send(ctx context.Context, events []model.Event) error
}

// Tracker emits an update_entity event for every change to a registered
// entity.
type Tracker struct {
	registry   *governance.Registry
	source     store.Source
	builder    *events.Builder
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.RWMutex
	entities map[string]bool
}

// NewTracker creates a tracker with no registered entities.
func NewTracker(registry *governance.Registry, source store.Source, builder *events.Builder, dispatcher Dispatcher, logger *slog.Logger) *Tracker {
	return &Tracker{
		registry:   registry,
		source:     source,
		builder:    builder,
		dispatcher: dispatcher,
		logger:     logger,
		entities:   make(map[string]bool),
	}
}

// Register starts tracking entity. Only governed entities can be tracked.
func (t *Tracker) Register(entity string) error {
	if !t.registry.IsGoverned(entity) {
		return fmt.Errorf("track %s: entity is not governed", entity)
	}
	t.mu.Lock()
	t.entities[entity] = true
	t.mu.Unlock()
	return nil
}

// Registered returns the tracked entities in sorted order.
func (t *Tracker) Registered() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entities))
	for e := range t.entities {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) registered(entity string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entities[entity]
}

// Handle dispatches one update_entity event for the changed record.
// Deletes, unregistered entities and records that no longer exist are
// ignored.
func (t *Tracker) Handle(ctx context.Context, n Notification) error {
	if n.Op == "delete" || !t.registered(n.Entity) {
		return nil
	}

	rec, err := t.source.Get(ctx, n.Entity, n.ID)
	if errors.Is(err, store.ErrNotFound) {
		t.logger.Debug("changed record is gone", "entity", n.Entity, "id", n.ID)
		return nil
	}
	if err != nil {
		return err
	}

	ev, err := t.builder.Build(ctx, n.Entity, model.EventUpdateEntity, rec)
	if err != nil {
		return err
	}
	return t.dispatcher.Send(ctx, []model.Event{ev})
}

// Listen handles notifications until ctx is cancelled or the channel is
// closed. Failures are logged and do not stop the loop.
func (t *Tracker) Listen(ctx context.Context, notifications <-chan *pq.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case pn, ok := <-notifications:
			if !ok {
				return
			}
			if pn == nil {
				// The listener reconnected; changes in the gap were missed.
				t.logger.Warn("change listener reconnected, notifications may have been lost")
				continue
			}
			n, err := ParseNotification(pn.Extra)
			if err != nil {
				t.logger.Warn("ignoring change notification", "err", err)
				continue
			}
			if err := t.Handle(ctx, n); err != nil {
				t.logger.Error("change tracking failed", "entity", n.Entity, "id", n.ID, "err", err)
			}
		}
	}
}
