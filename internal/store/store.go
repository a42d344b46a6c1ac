package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// ErrNotFound is returned when a record or entity does not exist.
var ErrNotFound = errors.New("not found")

// Source is read access to the application's records.
type Source interface {
	// Schema introspection
	Entities(ctx context.Context) ([]string, error)
	Attributes(ctx context.Context, entity string) ([]string, error)

	// Records
	Count(ctx context.Context, entity string) (int, error)
	// Window returns up to limit records starting at offset, in primary key
	// order.
	Window(ctx context.Context, entity string, offset, limit int) ([]model.Record, error)
	Get(ctx context.Context, entity, id string) (model.Record, error)

	Close() error
}
