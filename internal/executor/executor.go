// Package executor is the boundary between report evaluation and data
// retrieval. A RowSource fetches flat rows keyed by field path; everything
// above it (grouping, aggregation, formatting) is backend-agnostic.
package executor

import (
	"context"

	"github.com/rpattn/reportql/internal/domain"
)

// RowSource fetches projected rows of the given entity type matching the
// predicate. The returned maps are keyed by field path, relation traversals
// included, so "customer__name" holds the joined value.
type RowSource interface {
	Fetch(ctx context.Context, rootType string, predicate domain.Predicate, fieldPaths []string) ([]map[string]any, error)
}
