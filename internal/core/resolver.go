package core

import (
	"context"
	"fmt"
)

// Visibility codes understood by the catalog.
const (
	VisibilityNotVisible    = 1
	VisibilityCatalog       = 2
	VisibilitySearch        = 3
	VisibilityCatalogSearch = 4
)

// visibilityLabels is ordered by code; lookups walk it in order.
var visibilityLabels = []struct {
	code  int
	label string
}{
	{VisibilityNotVisible, "Not Visible Individually"},
	{VisibilityCatalog, "Catalog"},
	{VisibilitySearch, "Search"},
	{VisibilityCatalogSearch, "Catalog, Search"},
}

// ReferenceResolver maps human-facing names in a row to catalog identifiers.
// It holds no state between calls.
type ReferenceResolver struct {
	categories CategoryDirectory
}

// NewReferenceResolver creates a resolver backed by the category directory.
func NewReferenceResolver(categories CategoryDirectory) *ReferenceResolver {
	return &ReferenceResolver{categories: categories}
}

// ResolveCategory looks a category up by exact name. When several categories
// share the name the first in directory order wins. Not found is not an error.
func (r *ReferenceResolver) ResolveCategory(ctx context.Context, name string) (int64, bool, error) {
	if name == "" {
		return 0, false, nil
	}
	found, err := r.categories.FindByName(ctx, name, 1)
	if err != nil {
		return 0, false, fmt.Errorf("find category %q: %w", name, err)
	}
	if len(found) == 0 {
		return 0, false, nil
	}
	return found[0].ID, true, nil
}

// ResolveVisibility returns the code for an exact label match.
func (r *ReferenceResolver) ResolveVisibility(label string) (int, bool) {
	for _, v := range visibilityLabels {
		if v.label == label {
			return v.code, true
		}
	}
	return 0, false
}
