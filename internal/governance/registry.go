package governance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// ErrUnverified is returned by anything that would export data before Check
// has passed.
var ErrUnverified = errors.New("governance check has not passed")

// SchemaProvider reports the live schema of the data store.
type SchemaProvider interface {
	Entities(ctx context.Context) ([]string, error)
	Attributes(ctx context.Context, entity string) ([]string, error)
}

type fieldSet map[string]map[string]bool

func newFieldSet(ef EntityFields) fieldSet {
	fs := make(fieldSet, len(ef))
	for entity, attrs := range ef {
		set := make(map[string]bool, len(attrs))
		for _, a := range attrs {
			set[a] = true
		}
		fs[entity] = set
	}
	return fs
}

func (fs fieldSet) has(entity, attr string) bool {
	return fs[entity][attr]
}

// Registry answers classification questions for governed entities. The lists
// are read-only after construction.
type Registry struct {
	export    fieldSet
	pii       fieldSet
	blocklist fieldSet
	lists     Lists

	verified atomic.Bool
}

// NewRegistry builds a registry over the given lists. It starts unverified.
func NewRegistry(l Lists) *Registry {
	return &Registry{
		export:    newFieldSet(l.Export),
		pii:       newFieldSet(l.PII),
		blocklist: newFieldSet(l.Blocklist),
		lists:     l,
	}
}

// Classify returns the class of attr on entity. Attributes that are not
// exported are blocked, whatever the lists say about them.
func (r *Registry) Classify(entity, attr string) model.Classification {
	if !r.export.has(entity, attr) {
		return model.ClassBlocked
	}
	if r.pii.has(entity, attr) {
		return model.ClassExportPII
	}
	return model.ClassExportPlain
}

// IsGoverned reports whether entity appears in the export list or the blocklist.
func (r *Registry) IsGoverned(entity string) bool {
	_, exported := r.export[entity]
	_, blocked := r.blocklist[entity]
	return exported || blocked
}

// Governed returns the governed entity names in ascending order.
func (r *Registry) Governed() []string {
	seen := map[string]bool{}
	for e := range r.export {
		seen[e] = true
	}
	for e := range r.blocklist {
		seen[e] = true
	}
	return sortedKeys(seen)
}

// Exported returns the attributes of entity that may leave the process.
func (r *Registry) Exported(entity string) []string {
	return sortedKeys(r.export[entity])
}

// Verified reports whether Check has passed.
func (r *Registry) Verified() bool {
	return r.verified.Load()
}

// Blocked computes the attributes of entity that are never exported: the live
// attribute set minus the export list.
func (r *Registry) Blocked(ctx context.Context, schema SchemaProvider, entity string) ([]string, error) {
	attrs, err := schema.Attributes(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("attributes of %s: %w", entity, err)
	}
	var blocked []string
	for _, a := range attrs {
		if !r.export.has(entity, a) {
			blocked = append(blocked, a)
		}
	}
	sort.Strings(blocked)
	return blocked, nil
}

// Check compares the lists against the live schema and returns a
// *model.ConfigurationError describing every gap, stale entry and conflict.
// It enumerates the schema of every governed entity, so it runs once at
// startup rather than per event.
func (r *Registry) Check(ctx context.Context, schema SchemaProvider) error {
	r.verified.Store(false)

	entities, err := schema.Entities(ctx)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	live := make(map[string]map[string]bool, len(entities))
	for _, e := range entities {
		live[e] = nil
	}
	attributesOf := func(entity string) (map[string]bool, error) {
		if set := live[entity]; set != nil {
			return set, nil
		}
		attrs, err := schema.Attributes(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("attributes of %s: %w", entity, err)
		}
		set := make(map[string]bool, len(attrs))
		for _, a := range attrs {
			set[a] = true
		}
		live[entity] = set
		return set, nil
	}

	var ce model.ConfigurationError

	for _, list := range []struct {
		name   string
		fields EntityFields
	}{
		{ExportFile, r.lists.Export},
		{PIIFile, r.lists.PII},
		{BlocklistFile, r.lists.Blocklist},
	} {
		for _, entity := range sortedKeys(list.fields) {
			if _, ok := live[entity]; !ok {
				ce.Stale = append(ce.Stale, &model.StaleClassification{List: list.name, Entity: entity})
				continue
			}
			attrs, err := attributesOf(entity)
			if err != nil {
				return err
			}
			listed := slices.Clone(list.fields[entity])
			sort.Strings(listed)
			for _, a := range slices.Compact(listed) {
				if !attrs[a] {
					ce.Stale = append(ce.Stale, &model.StaleClassification{List: list.name, Entity: entity, Attribute: a})
				}
			}
		}
	}

	for _, entity := range r.Governed() {
		if _, ok := live[entity]; !ok {
			continue
		}
		attrs, err := attributesOf(entity)
		if err != nil {
			return err
		}
		for _, a := range sortedKeys(attrs) {
			exported := r.export.has(entity, a)
			blocked := r.blocklist.has(entity, a)
			switch {
			case !exported && !blocked:
				ce.Gaps = append(ce.Gaps, &model.ClassificationGap{Entity: entity, Attribute: a})
			case exported && blocked:
				ce.Conflicts = append(ce.Conflicts, &model.ClassificationConflict{
					Entity: entity, Attribute: a, Reason: "listed in both the export list and the blocklist",
				})
			}
		}
	}

	for _, entity := range sortedKeys(r.lists.PII) {
		if _, ok := live[entity]; !ok {
			continue
		}
		attrs, err := attributesOf(entity)
		if err != nil {
			return err
		}
		for _, a := range sortedKeys(r.pii[entity]) {
			if attrs[a] && !r.export.has(entity, a) {
				ce.Conflicts = append(ce.Conflicts, &model.ClassificationConflict{
					Entity: entity, Attribute: a, Reason: "listed as PII but not exported",
				})
			}
		}
	}

	if ce.HasErrors() {
		return &ce
	}
	r.verified.Store(true)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
