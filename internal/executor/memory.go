package executor

import (
	"context"
	"strings"
	"sync"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/schema"
)

// MemorySource serves rows from entities held in memory, following
// relation references through the stored entity maps. It backs tests and
// small embedded deployments.
type MemorySource struct {
	mu       sync.RWMutex
	schema   schema.Provider
	entities map[string][]Entity
	byID     map[string]Entity
}

// Entity is one in-memory record: an identifier, its type and its flat
// property map. Relation fields hold the ID of the referenced entity.
type Entity struct {
	ID         string
	EntityType string
	Properties map[string]any
}

func NewMemorySource(provider schema.Provider) *MemorySource {
	return &MemorySource{
		schema:   provider,
		entities: make(map[string][]Entity),
		byID:     make(map[string]Entity),
	}
}

// Add registers an entity with the source.
func (s *MemorySource) Add(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.EntityType] = append(s.entities[e.EntityType], e)
	if e.ID != "" {
		s.byID[e.ID] = e
	}
}

// Fetch projects the requested field paths for every entity of rootType,
// then filters the projected rows with the predicate.
func (s *MemorySource) Fetch(ctx context.Context, rootType string, predicate domain.Predicate, fieldPaths []string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]map[string]any, 0, len(s.entities[rootType]))
	for _, e := range s.entities[rootType] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fieldPaths))
		for _, path := range fieldPaths {
			row[path] = s.resolvePath(e, path)
		}
		if predicate.Matches(row) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// resolvePath walks a dotted path through relation references. A broken
// link anywhere along the chain yields nil.
func (s *MemorySource) resolvePath(e Entity, path string) any {
	segments := strings.Split(path, domain.PathSeparator)
	current := e
	for i, segment := range segments {
		if i == len(segments)-1 {
			return current.Properties[segment]
		}
		ref, ok := current.Properties[segment].(string)
		if !ok || ref == "" {
			return nil
		}
		next, ok := s.byID[ref]
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}
