package executor

import (
	"context"
	"testing"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/schema"
)

func seededSource() *MemorySource {
	r := schema.NewRegistry()
	r.Register("order", []schema.Field{
		{Name: "status", Kind: schema.KindString},
		{Name: "total", Kind: schema.KindFloat},
		{Name: "customer", IsRelation: true, RelatedType: "customer"},
	})
	r.Register("customer", []schema.Field{
		{Name: "name", Kind: schema.KindString},
		{Name: "region", IsRelation: true, RelatedType: "region"},
	})
	r.Register("region", []schema.Field{
		{Name: "code", Kind: schema.KindString},
	})

	s := NewMemorySource(r)
	s.Add(Entity{ID: "r1", EntityType: "region", Properties: map[string]any{"code": "EU"}})
	s.Add(Entity{ID: "c1", EntityType: "customer", Properties: map[string]any{"name": "Acme", "region": "r1"}})
	s.Add(Entity{ID: "c2", EntityType: "customer", Properties: map[string]any{"name": "Globex"}})
	s.Add(Entity{ID: "o1", EntityType: "order", Properties: map[string]any{"status": "pending", "total": 10.0, "customer": "c1"}})
	s.Add(Entity{ID: "o2", EntityType: "order", Properties: map[string]any{"status": "shipped", "total": 20.0, "customer": "c2"}})
	s.Add(Entity{ID: "o3", EntityType: "order", Properties: map[string]any{"status": "pending", "total": 30.0, "customer": "missing"}})
	return s
}

func TestMemorySourceProjectsRelationPaths(t *testing.T) {
	s := seededSource()

	rows, err := s.Fetch(context.Background(), "order", domain.Predicate{},
		[]string{"status", "total", "customer__name", "customer__region__code"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	byStatusTotal := map[float64]map[string]any{}
	for _, row := range rows {
		byStatusTotal[row["total"].(float64)] = row
	}
	if byStatusTotal[10.0]["customer__name"] != "Acme" {
		t.Fatalf("expected joined customer name, got %v", byStatusTotal[10.0]["customer__name"])
	}
	if byStatusTotal[10.0]["customer__region__code"] != "EU" {
		t.Fatalf("expected two-hop region code, got %v", byStatusTotal[10.0]["customer__region__code"])
	}
	// c2 has no region; o3 points at a missing customer. Both resolve nil.
	if byStatusTotal[20.0]["customer__region__code"] != nil {
		t.Fatalf("expected nil for absent relation, got %v", byStatusTotal[20.0]["customer__region__code"])
	}
	if byStatusTotal[30.0]["customer__name"] != nil {
		t.Fatalf("expected nil for broken reference, got %v", byStatusTotal[30.0]["customer__name"])
	}
}

func TestMemorySourceAppliesPredicate(t *testing.T) {
	s := seededSource()

	pred := domain.Predicate{Groups: []domain.ClauseGroup{
		{FieldPath: "status", Clauses: []domain.Clause{{Operator: domain.FilterEquals, Value: "pending"}}},
	}}

	rows, err := s.Fetch(context.Background(), "order", pred, []string{"status", "total"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 pending orders, got %d", len(rows))
	}
	for _, row := range rows {
		if row["status"] != "pending" {
			t.Fatalf("expected only pending orders, got %v", row["status"])
		}
	}
}

func TestMemorySourceUnknownTypeReturnsEmpty(t *testing.T) {
	s := seededSource()

	rows, err := s.Fetch(context.Background(), "invoice", domain.Predicate{}, []string{"status"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}
