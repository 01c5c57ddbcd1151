package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/reportql/internal/cache"
	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/executor"
	"github.com/rpattn/reportql/internal/repository"
	"github.com/rpattn/reportql/internal/schema"
)

// fakeReportRepository serves a single definition from memory and counts
// mutation calls so tests can assert cache invalidation behaviour.
type fakeReportRepository struct {
	def     domain.ReportDefinition
	getErr  error
	updates int
}

func (f *fakeReportRepository) Create(_ context.Context, def domain.ReportDefinition) (domain.ReportDefinition, error) {
	f.def = def
	return def, nil
}

func (f *fakeReportRepository) GetByID(_ context.Context, id uuid.UUID) (domain.ReportDefinition, error) {
	if f.getErr != nil {
		return domain.ReportDefinition{}, f.getErr
	}
	if id != f.def.ID {
		return domain.ReportDefinition{}, repository.ErrNotFound
	}
	return f.def, nil
}

func (f *fakeReportRepository) List(context.Context) ([]domain.ReportDefinition, error) {
	return []domain.ReportDefinition{f.def}, nil
}

func (f *fakeReportRepository) Update(_ context.Context, def domain.ReportDefinition) (domain.ReportDefinition, error) {
	f.updates++
	f.def = def
	return def, nil
}

func (f *fakeReportRepository) Delete(context.Context, uuid.UUID) error { return nil }

func (f *fakeReportRepository) AddColumn(_ context.Context, _ uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error) {
	f.updates++
	f.def.Columns = append(f.def.Columns, col)
	return col, nil
}

func (f *fakeReportRepository) UpdateColumn(_ context.Context, _ uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error) {
	f.updates++
	return col, nil
}

func (f *fakeReportRepository) DeleteColumn(context.Context, uuid.UUID, uuid.UUID) error {
	f.updates++
	return nil
}

func (f *fakeReportRepository) ReorderColumns(context.Context, uuid.UUID, []uuid.UUID) error {
	f.updates++
	return nil
}

func (f *fakeReportRepository) AddFilter(_ context.Context, _ uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error) {
	f.updates++
	f.def.Filters = append(f.def.Filters, filter)
	return filter, nil
}

func (f *fakeReportRepository) UpdateFilter(_ context.Context, _ uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error) {
	f.updates++
	return filter, nil
}

func (f *fakeReportRepository) DeleteFilter(context.Context, uuid.UUID, uuid.UUID) error {
	f.updates++
	return nil
}

func (f *fakeReportRepository) AddGrouping(_ context.Context, _ uuid.UUID, grouping domain.ReportGrouping) (domain.ReportGrouping, error) {
	f.updates++
	return grouping, nil
}

func (f *fakeReportRepository) DeleteGrouping(context.Context, uuid.UUID, uuid.UUID) error {
	f.updates++
	return nil
}

func (f *fakeReportRepository) AddCalculatedField(_ context.Context, _ uuid.UUID, field domain.CalculatedField) (domain.CalculatedField, error) {
	f.updates++
	return field, nil
}

func (f *fakeReportRepository) DeleteCalculatedField(context.Context, uuid.UUID, uuid.UUID) error {
	f.updates++
	return nil
}

// countingSource wraps a RowSource and counts Fetch calls.
type countingSource struct {
	inner   executor.RowSource
	fetches int
}

func (c *countingSource) Fetch(ctx context.Context, rootType string, predicate domain.Predicate, fieldPaths []string) ([]map[string]any, error) {
	c.fetches++
	return c.inner.Fetch(ctx, rootType, predicate, fieldPaths)
}

type failingSource struct{ err error }

func (f failingSource) Fetch(context.Context, string, domain.Predicate, []string) ([]map[string]any, error) {
	return nil, f.err
}

func testRegistry() *schema.Registry {
	r := schema.NewRegistry()
	r.Register("order", []schema.Field{
		{Name: "status", Kind: schema.KindString},
		{Name: "total", Kind: schema.KindFloat},
	})
	return r
}

func testDefinition() domain.ReportDefinition {
	return domain.ReportDefinition{
		ID:       uuid.New(),
		Name:     "Orders",
		RootType: "order",
		Columns: []domain.ReportColumn{
			{ID: uuid.New(), Name: "Status", FieldPath: "status", Order: 0, IsVisible: true, IsSortable: true},
			{ID: uuid.New(), Name: "Total", FieldPath: "total", Order: 1, IsVisible: true, Aggregation: domain.AggregationSum},
		},
	}
}

func testSetup(def domain.ReportDefinition) (*Service, *fakeReportRepository, *countingSource) {
	registry := testRegistry()
	mem := executor.NewMemorySource(registry)
	mem.Add(executor.Entity{ID: "o1", EntityType: "order", Properties: map[string]any{"status": "pending", "total": 10.0}})
	mem.Add(executor.Entity{ID: "o2", EntityType: "order", Properties: map[string]any{"status": "shipped", "total": 20.0}})
	source := &countingSource{inner: mem}

	repo := &fakeReportRepository{def: def}
	svc := New(repo, registry, source, cache.New(0, 0), zerolog.Nop())
	return svc, repo, source
}

func TestExecuteReturnsPage(t *testing.T) {
	def := testDefinition()
	svc, _, _ := testSetup(def)

	page, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalRows != 2 {
		t.Fatalf("expected 2 rows, got %d", page.TotalRows)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items on page, got %d", len(page.Items))
	}
	if page.GrandTotals == nil || page.GrandTotals["total"] != 30.0 {
		t.Fatalf("expected grand total 30, got %v", page.GrandTotals)
	}
}

func TestExecuteUnknownReport(t *testing.T) {
	def := testDefinition()
	svc, _, _ := testSetup(def)

	_, err := svc.Execute(context.Background(), uuid.New(), ExecuteParams{Page: 1})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecuteNoVisibleColumns(t *testing.T) {
	def := testDefinition()
	for i := range def.Columns {
		def.Columns[i].IsVisible = false
	}
	svc, _, _ := testSetup(def)

	_, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1})
	if !errors.Is(err, ErrNoVisibleColumns) {
		t.Fatalf("expected ErrNoVisibleColumns, got %v", err)
	}
}

func TestExecuteWrapsSourceFailure(t *testing.T) {
	def := testDefinition()
	repo := &fakeReportRepository{def: def}
	boom := errors.New("connection refused")
	svc := New(repo, testRegistry(), failingSource{err: boom}, cache.New(0, 0), zerolog.Nop())

	_, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1})
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if qe.RootType != "order" {
		t.Fatalf("expected root type order, got %s", qe.RootType)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestExecuteCachesResults(t *testing.T) {
	def := testDefinition()
	svc, _, source := testSetup(def)

	if _, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1}); err != nil {
		t.Fatalf("first execution: %v", err)
	}
	if _, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1}); err != nil {
		t.Fatalf("second execution: %v", err)
	}
	if source.fetches != 1 {
		t.Fatalf("expected second execution to hit the cache, got %d fetches", source.fetches)
	}

	if _, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1, BypassCache: true}); err != nil {
		t.Fatalf("bypass execution: %v", err)
	}
	if source.fetches != 2 {
		t.Fatalf("expected bypass to recompute, got %d fetches", source.fetches)
	}
}

func TestMutationsInvalidateCache(t *testing.T) {
	def := testDefinition()
	svc, _, source := testSetup(def)

	if _, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1}); err != nil {
		t.Fatalf("prime execution: %v", err)
	}
	if _, err := svc.AddFilter(context.Background(), def.ID, domain.ReportFilter{
		ID: uuid.New(), FieldPath: "status", Operator: domain.FilterEquals, Value: "pending",
	}); err != nil {
		t.Fatalf("add filter: %v", err)
	}
	if _, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1}); err != nil {
		t.Fatalf("post-mutation execution: %v", err)
	}
	if source.fetches != 2 {
		t.Fatalf("expected mutation to invalidate cached page, got %d fetches", source.fetches)
	}
}

func TestExecuteIgnoresUnsortableSortField(t *testing.T) {
	def := testDefinition()
	svc, _, _ := testSetup(def)

	// "total" is not sortable; results keep their natural order.
	page, err := svc.Execute(context.Background(), def.ID, ExecuteParams{Page: 1, SortField: "total", SortDirection: "desc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Items[0].Values["total"] != 10.0 {
		t.Fatalf("expected natural order preserved, got %v first", page.Items[0].Values["total"])
	}
}

func TestExecuteAllReturnsFullResultSet(t *testing.T) {
	def := testDefinition()
	svc, _, _ := testSetup(def)

	got, rs, err := svc.ExecuteAll(context.Background(), def.ID, ExecuteParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != def.ID {
		t.Fatalf("expected definition %s, got %s", def.ID, got.ID)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rs.Rows))
	}
}
