package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/schema"
)

// ReportRepository defines the interface for report definition persistence
type ReportRepository interface {
	Create(ctx context.Context, def domain.ReportDefinition) (domain.ReportDefinition, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ReportDefinition, error)
	List(ctx context.Context) ([]domain.ReportDefinition, error)
	Update(ctx context.Context, def domain.ReportDefinition) (domain.ReportDefinition, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddColumn(ctx context.Context, reportID uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error)
	UpdateColumn(ctx context.Context, reportID uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error)
	DeleteColumn(ctx context.Context, reportID, columnID uuid.UUID) error
	ReorderColumns(ctx context.Context, reportID uuid.UUID, columnIDs []uuid.UUID) error

	AddFilter(ctx context.Context, reportID uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error)
	UpdateFilter(ctx context.Context, reportID uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error)
	DeleteFilter(ctx context.Context, reportID, filterID uuid.UUID) error

	AddGrouping(ctx context.Context, reportID uuid.UUID, grouping domain.ReportGrouping) (domain.ReportGrouping, error)
	DeleteGrouping(ctx context.Context, reportID, groupingID uuid.UUID) error

	AddCalculatedField(ctx context.Context, reportID uuid.UUID, field domain.CalculatedField) (domain.CalculatedField, error)
	DeleteCalculatedField(ctx context.Context, reportID, fieldID uuid.UUID) error
}

// SchemaRepository defines the interface for entity schema persistence
type SchemaRepository interface {
	Save(ctx context.Context, entityType string, fields []schema.Field) error
	Get(ctx context.Context, entityType string) ([]schema.Field, error)
	LoadAll(ctx context.Context, registry *schema.Registry) error
}
