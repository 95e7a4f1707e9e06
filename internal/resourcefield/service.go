package resourcefield

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/crm/internal/field"
)

// Accessor combines a Repository with the field registry so callers work with
// API values instead of cells.
type Accessor struct {
	repo     Repository
	registry *field.Registry
}

// NewAccessor wraps repo.
func NewAccessor(repo Repository, registry *field.Registry) *Accessor {
	return &Accessor{repo: repo, registry: registry}
}

// Save flattens values and inserts them for resourceID.
func (a *Accessor) Save(ctx context.Context, resourceID string, form field.FormConfig, values []field.Value) error {
	cells, err := Flatten(form, a.registry, values)
	if err != nil {
		return err
	}
	return a.repo.Insert(ctx, resourceID, cells)
}

// Replace deletes every stored value of resourceID and saves values. Callers
// run it inside their transaction so the swap is never observed half done.
func (a *Accessor) Replace(ctx context.Context, resourceID string, form field.FormConfig, values []field.Value) error {
	cells, err := Flatten(form, a.registry, values)
	if err != nil {
		return err
	}
	if err := a.repo.Delete(ctx, resourceID); err != nil {
		return err
	}
	return a.repo.Insert(ctx, resourceID, cells)
}

// Delete removes the values of the given resources.
func (a *Accessor) Delete(ctx context.Context, resourceIDs ...string) error {
	return a.repo.Delete(ctx, resourceIDs...)
}

// ListByResourceIDs returns API values per resource in insertion order.
func (a *Accessor) ListByResourceIDs(ctx context.Context, resourceIDs []string, form field.FormConfig, includeBlob bool) (map[string][]field.Value, error) {
	cells, err := a.repo.List(ctx, resourceIDs, includeBlob)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]field.Value, len(cells))
	for id, cs := range cells {
		values, err := Group(form, a.registry, cs)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", id, err)
		}
		out[id] = values
	}
	return out, nil
}

// Cells returns the raw cells per resource for exports.
func (a *Accessor) Cells(ctx context.Context, resourceIDs []string) (map[string][]Cell, error) {
	return a.repo.List(ctx, resourceIDs, true)
}

// Get returns one resource's values keyed by field id, including blobs.
// Sub-table values are rows grouped by row id.
func (a *Accessor) Get(ctx context.Context, resourceID string, form field.FormConfig) (map[string]any, error) {
	all, err := a.ListByResourceIDs(ctx, []string{resourceID}, form, true)
	if err != nil {
		return nil, err
	}
	return field.ValueMap(all[resourceID]), nil
}
