package application

import (
	"fmt"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// BoundaryCollections names the boundary collections known to the service:
// one per level under Prefix, plus the search source collection.
type BoundaryCollections struct {
	Prefix string
	Search string
}

// Levels returns the per-level collection names.
func (c BoundaryCollections) Levels() []string {
	names := make([]string, 0, len(domain.AllBoundaryLevels))
	for _, l := range domain.AllBoundaryLevels {
		names = append(names, l.Collection(c.Prefix))
	}
	return names
}

// All returns every known collection.
func (c BoundaryCollections) All() []string {
	names := c.Levels()
	if c.Search != "" {
		names = append(names, c.Search)
	}
	return names
}

// Resolve validates a collection name and returns its level. The search
// source collection has no level.
func (c BoundaryCollections) Resolve(name string) (domain.BoundaryLevel, error) {
	if name != "" && name == c.Search {
		return "", nil
	}
	if l, ok := domain.LevelForCollection(c.Prefix, name); ok && name == l.Collection(c.Prefix) {
		return l, nil
	}
	return "", &domain.ValidationError{
		Field:      "collection",
		Value:      name,
		Constraint: fmt.Sprintf("%sctprvn|sig|emd|li", c.Prefix),
		Message:    fmt.Sprintf("unknown boundary collection %q", name),
		Err:        domain.ErrUnknownCollection,
	}
}
