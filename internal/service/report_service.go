// Package service orchestrates report execution: it loads definitions,
// compiles filters, fetches rows, runs the transform pipeline and serves
// pages through the result cache.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/reportql/internal/cache"
	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/executor"
	"github.com/rpattn/reportql/internal/filters"
	"github.com/rpattn/reportql/internal/pager"
	"github.com/rpattn/reportql/internal/pipeline"
	"github.com/rpattn/reportql/internal/repository"
	"github.com/rpattn/reportql/internal/schema"
)

// ErrNoVisibleColumns is returned when a report has nothing to show.
var ErrNoVisibleColumns = errors.New("report has no visible columns")

// QueryError wraps a failure at the data retrieval boundary so callers can
// distinguish backend errors from bad definitions.
type QueryError struct {
	RootType string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s rows: %v", e.RootType, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ExecuteParams are the per-request knobs of a report execution.
type ExecuteParams struct {
	Page          int
	PageSize      int
	SortField     string
	SortDirection string
	BypassCache   bool
}

// Service executes reports and owns the mutation lifecycle of report
// definitions, invalidating cached results whenever a definition changes.
type Service struct {
	reports repository.ReportRepository
	schema  schema.Provider
	source  executor.RowSource
	cache   *cache.ResultCache
	logger  zerolog.Logger
}

func New(reports repository.ReportRepository, provider schema.Provider, source executor.RowSource, resultCache *cache.ResultCache, logger zerolog.Logger) *Service {
	return &Service{
		reports: reports,
		schema:  provider,
		source:  source,
		cache:   resultCache,
		logger:  logger,
	}
}

// Execute runs a report and returns the requested page. Results come from
// the cache when a previous execution with the same key is still fresh.
func (s *Service) Execute(ctx context.Context, reportID uuid.UUID, params ExecuteParams) (pager.Page, error) {
	def, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return pager.Page{}, err
	}
	return s.ExecuteDefinition(ctx, def, params)
}

// ExecuteDefinition runs an already-loaded definition.
func (s *Service) ExecuteDefinition(ctx context.Context, def domain.ReportDefinition, params ExecuteParams) (pager.Page, error) {
	pageSize := pager.NormalizePageSize(params.PageSize)
	sortField, sortDirection := s.normalizeSort(def, params)

	key := cache.Key{
		ReportID:          def.ID,
		Page:              params.Page,
		PageSize:          pageSize,
		SortField:         sortField,
		SortDirection:     sortDirection,
		FilterFingerprint: cache.FingerprintFilters(def.Filters),
	}

	page, hit, err := s.cache.GetOrCompute(key, params.BypassCache, func() (pager.Page, error) {
		rs, err := s.run(ctx, def, sortField, sortDirection)
		if err != nil {
			return pager.Page{}, err
		}
		return pager.Paginate(rs, params.Page, pageSize), nil
	})
	if err != nil {
		return pager.Page{}, err
	}
	s.logger.Debug().
		Stringer("report_id", def.ID).
		Int("page", page.PageNumber).
		Bool("cache_hit", hit).
		Msg("report executed")
	return page, nil
}

// ExecuteAll runs a report without pagination, for exports.
func (s *Service) ExecuteAll(ctx context.Context, reportID uuid.UUID, params ExecuteParams) (domain.ReportDefinition, domain.ResultSet, error) {
	def, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return domain.ReportDefinition{}, domain.ResultSet{}, err
	}
	sortField, sortDirection := s.normalizeSort(def, params)
	rs, err := s.run(ctx, def, sortField, sortDirection)
	if err != nil {
		return domain.ReportDefinition{}, domain.ResultSet{}, err
	}
	return def, rs, nil
}

func (s *Service) run(ctx context.Context, def domain.ReportDefinition, sortField, sortDirection string) (domain.ResultSet, error) {
	visible := def.VisibleColumns()
	if len(visible) == 0 {
		return domain.ResultSet{}, ErrNoVisibleColumns
	}

	predicate := filters.Compile(def.Filters, def.RootType, s.schema)

	paths := def.ProjectedFieldPaths()
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
	}
	for _, group := range predicate.Groups {
		if _, ok := seen[group.FieldPath]; !ok {
			seen[group.FieldPath] = struct{}{}
			paths = append(paths, group.FieldPath)
		}
	}

	rows, err := s.source.Fetch(ctx, def.RootType, predicate, paths)
	if err != nil {
		return domain.ResultSet{}, &QueryError{RootType: def.RootType, Err: err}
	}

	rs := pipeline.Transform(pipeline.Input{
		Rows:          rows,
		Columns:       visible,
		Groupings:     def.OrderedGroupings(),
		RootType:      def.RootType,
		Schema:        s.schema,
		SortField:     sortField,
		SortDirection: sortDirection,
	}, s.logger)
	return rs, nil
}

// normalizeSort keeps only sort fields that name a sortable column of the
// report; direction defaults to ascending.
func (s *Service) normalizeSort(def domain.ReportDefinition, params ExecuteParams) (string, string) {
	direction := "asc"
	if params.SortDirection == "desc" {
		direction = "desc"
	}
	if params.SortField == "" {
		return "", direction
	}
	for _, col := range def.Columns {
		if col.Key() == params.SortField && col.IsSortable {
			return params.SortField, direction
		}
	}
	return "", direction
}

// CreateReport persists a new definition.
func (s *Service) CreateReport(ctx context.Context, def domain.ReportDefinition) (domain.ReportDefinition, error) {
	domain.NormalizeColumnOrder(def.Columns)
	domain.NormalizeGroupingOrder(def.Groupings)
	return s.reports.Create(ctx, def)
}

// GetReport loads a definition with all child records.
func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (domain.ReportDefinition, error) {
	return s.reports.GetByID(ctx, id)
}

// ListReports lists definitions without child records.
func (s *Service) ListReports(ctx context.Context) ([]domain.ReportDefinition, error) {
	return s.reports.List(ctx)
}

// UpdateReport updates the report's own attributes.
func (s *Service) UpdateReport(ctx context.Context, def domain.ReportDefinition) (domain.ReportDefinition, error) {
	updated, err := s.reports.Update(ctx, def)
	if err != nil {
		return domain.ReportDefinition{}, err
	}
	s.cache.Invalidate(def.ID)
	return updated, nil
}

// DeleteReport removes a definition and every cached result for it.
func (s *Service) DeleteReport(ctx context.Context, id uuid.UUID) error {
	if err := s.reports.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

// AddColumn appends a column to the report.
func (s *Service) AddColumn(ctx context.Context, reportID uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error) {
	out, err := s.reports.AddColumn(ctx, reportID, col)
	if err != nil {
		return domain.ReportColumn{}, err
	}
	s.cache.Invalidate(reportID)
	return out, nil
}

// UpdateColumn rewrites a column.
func (s *Service) UpdateColumn(ctx context.Context, reportID uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error) {
	out, err := s.reports.UpdateColumn(ctx, reportID, col)
	if err != nil {
		return domain.ReportColumn{}, err
	}
	s.cache.Invalidate(reportID)
	return out, nil
}

// DeleteColumn removes a column, its dependent filters and the order gap.
func (s *Service) DeleteColumn(ctx context.Context, reportID, columnID uuid.UUID) error {
	if err := s.reports.DeleteColumn(ctx, reportID, columnID); err != nil {
		return err
	}
	s.cache.Invalidate(reportID)
	return nil
}

// ReorderColumns applies a new display order.
func (s *Service) ReorderColumns(ctx context.Context, reportID uuid.UUID, columnIDs []uuid.UUID) error {
	if err := s.reports.ReorderColumns(ctx, reportID, columnIDs); err != nil {
		return err
	}
	s.cache.Invalidate(reportID)
	return nil
}

// AddFilter stores a filter clause.
func (s *Service) AddFilter(ctx context.Context, reportID uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error) {
	out, err := s.reports.AddFilter(ctx, reportID, filter)
	if err != nil {
		return domain.ReportFilter{}, err
	}
	s.cache.Invalidate(reportID)
	return out, nil
}

// UpdateFilter rewrites a filter clause.
func (s *Service) UpdateFilter(ctx context.Context, reportID uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error) {
	out, err := s.reports.UpdateFilter(ctx, reportID, filter)
	if err != nil {
		return domain.ReportFilter{}, err
	}
	s.cache.Invalidate(reportID)
	return out, nil
}

// DeleteFilter removes a filter clause.
func (s *Service) DeleteFilter(ctx context.Context, reportID, filterID uuid.UUID) error {
	if err := s.reports.DeleteFilter(ctx, reportID, filterID); err != nil {
		return err
	}
	s.cache.Invalidate(reportID)
	return nil
}

// AddGrouping appends a grouping level.
func (s *Service) AddGrouping(ctx context.Context, reportID uuid.UUID, grouping domain.ReportGrouping) (domain.ReportGrouping, error) {
	out, err := s.reports.AddGrouping(ctx, reportID, grouping)
	if err != nil {
		return domain.ReportGrouping{}, err
	}
	s.cache.Invalidate(reportID)
	return out, nil
}

// DeleteGrouping removes a grouping level.
func (s *Service) DeleteGrouping(ctx context.Context, reportID, groupingID uuid.UUID) error {
	if err := s.reports.DeleteGrouping(ctx, reportID, groupingID); err != nil {
		return err
	}
	s.cache.Invalidate(reportID)
	return nil
}

// AddCalculatedField stores a named formula on the report.
func (s *Service) AddCalculatedField(ctx context.Context, reportID uuid.UUID, field domain.CalculatedField) (domain.CalculatedField, error) {
	out, err := s.reports.AddCalculatedField(ctx, reportID, field)
	if err != nil {
		return domain.CalculatedField{}, err
	}
	s.cache.Invalidate(reportID)
	return out, nil
}

// DeleteCalculatedField removes a named formula.
func (s *Service) DeleteCalculatedField(ctx context.Context, reportID, fieldID uuid.UUID) error {
	if err := s.reports.DeleteCalculatedField(ctx, reportID, fieldID); err != nil {
		return err
	}
	s.cache.Invalidate(reportID)
	return nil
}
