package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/reportql/internal/db"
	"github.com/rpattn/reportql/internal/domain"
)

// ErrNotFound is returned when a report or one of its child records does
// not exist.
var ErrNotFound = errors.New("not found")

// reportRepository implements ReportRepository on PostgreSQL
type reportRepository struct {
	conn *db.Connection
}

// NewReportRepository creates a new report repository
func NewReportRepository(conn *db.Connection) ReportRepository {
	return &reportRepository{conn: conn}
}

// Create persists a report definition and all of its child records in one
// transaction.
func (r *reportRepository) Create(ctx context.Context, def domain.ReportDefinition) (domain.ReportDefinition, error) {
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO reports (name, description, root_entity_type)
			 VALUES ($1, $2, $3)
			 RETURNING id, created_at, updated_at`,
			def.Name, def.Description, def.RootType)
		if err := row.Scan(&def.ID, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		for i := range def.Columns {
			col, err := insertColumn(ctx, tx, def.ID, def.Columns[i])
			if err != nil {
				return err
			}
			def.Columns[i] = col
		}
		for i := range def.Filters {
			f, err := insertFilter(ctx, tx, def.ID, def.Filters[i])
			if err != nil {
				return err
			}
			def.Filters[i] = f
		}
		for i := range def.Groupings {
			g, err := insertGrouping(ctx, tx, def.ID, def.Groupings[i])
			if err != nil {
				return err
			}
			def.Groupings[i] = g
		}
		for i := range def.CalculatedFields {
			cf, err := insertCalculatedField(ctx, tx, def.ID, def.CalculatedFields[i])
			if err != nil {
				return err
			}
			def.CalculatedFields[i] = cf
		}
		return nil
	})
	if err != nil {
		return domain.ReportDefinition{}, err
	}
	return def, nil
}

// GetByID loads a report definition with all of its child records.
func (r *reportRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ReportDefinition, error) {
	var def domain.ReportDefinition
	row := r.conn.Pool.QueryRow(ctx,
		`SELECT id, name, description, root_entity_type, created_at, updated_at
		 FROM reports WHERE id = $1`, id)
	err := row.Scan(&def.ID, &def.Name, &def.Description, &def.RootType, &def.CreatedAt, &def.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ReportDefinition{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.ReportDefinition{}, fmt.Errorf("load report: %w", err)
	}

	if def.Columns, err = r.loadColumns(ctx, id); err != nil {
		return domain.ReportDefinition{}, err
	}
	if def.Filters, err = r.loadFilters(ctx, id); err != nil {
		return domain.ReportDefinition{}, err
	}
	if def.Groupings, err = r.loadGroupings(ctx, id); err != nil {
		return domain.ReportDefinition{}, err
	}
	if def.CalculatedFields, err = r.loadCalculatedFields(ctx, id); err != nil {
		return domain.ReportDefinition{}, err
	}
	return def, nil
}

// List returns every report without child records, newest first.
func (r *reportRepository) List(ctx context.Context) ([]domain.ReportDefinition, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT id, name, description, root_entity_type, created_at, updated_at
		 FROM reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var defs []domain.ReportDefinition
	for rows.Next() {
		var def domain.ReportDefinition
		if err := rows.Scan(&def.ID, &def.Name, &def.Description, &def.RootType, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Update changes the report's own attributes; child records have their own
// operations.
func (r *reportRepository) Update(ctx context.Context, def domain.ReportDefinition) (domain.ReportDefinition, error) {
	row := r.conn.Pool.QueryRow(ctx,
		`UPDATE reports SET name = $2, description = $3, root_entity_type = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		def.ID, def.Name, def.Description, def.RootType)
	err := row.Scan(&def.CreatedAt, &def.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ReportDefinition{}, fmt.Errorf("report %s: %w", def.ID, ErrNotFound)
	}
	if err != nil {
		return domain.ReportDefinition{}, fmt.Errorf("update report: %w", err)
	}
	return def, nil
}

// Delete removes the report; columns, filters, groupings and calculated
// fields cascade at the database level.
func (r *reportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddColumn appends a column at the end of the display order.
func (r *reportRepository) AddColumn(ctx context.Context, reportID uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error) {
	var out domain.ReportColumn
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM report_columns WHERE report_id = $1`,
			reportID).Scan(&col.Order); err != nil {
			return fmt.Errorf("next column position: %w", err)
		}
		var err error
		out, err = insertColumn(ctx, tx, reportID, col)
		return err
	})
	return out, err
}

// UpdateColumn rewrites a column's attributes in place, keeping its position.
func (r *reportRepository) UpdateColumn(ctx context.Context, reportID uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error) {
	rules, err := json.Marshal(col.ConditionalFormatting)
	if err != nil {
		return domain.ReportColumn{}, fmt.Errorf("encode conditional formatting: %w", err)
	}
	tag, err := r.conn.Pool.Exec(ctx,
		`UPDATE report_columns SET
			name = $3, field_path = $4, display_name = $5, is_visible = $6,
			aggregation = $7, formula = $8, is_formula = $9,
			formatting_type = $10, decimal_places = $11, currency_symbol = $12,
			date_format = $13, is_sortable = $14, conditional_formatting = $15,
			condition = $16, window_size = $17, time_unit = $18, weight_field = $19
		 WHERE id = $1 AND report_id = $2`,
		col.ID, reportID, col.Name, col.FieldPath, col.DisplayName, col.IsVisible,
		string(col.Aggregation), col.Formula, col.IsFormula,
		string(col.FormattingType), col.DecimalPlaces, col.CurrencySymbol,
		col.DateFormat, col.IsSortable, rules,
		col.Condition, col.WindowSize, string(col.TimeUnit), col.WeightField)
	if err != nil {
		return domain.ReportColumn{}, fmt.Errorf("update column: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ReportColumn{}, fmt.Errorf("column %s: %w", col.ID, ErrNotFound)
	}
	return col, nil
}

// DeleteColumn removes a column along with any filters on the same field
// path, then closes the gap in the display order.
func (r *reportRepository) DeleteColumn(ctx context.Context, reportID, columnID uuid.UUID) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var fieldPath string
		err := tx.QueryRow(ctx,
			`DELETE FROM report_columns WHERE id = $1 AND report_id = $2 RETURNING field_path`,
			columnID, reportID).Scan(&fieldPath)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("column %s: %w", columnID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("delete column: %w", err)
		}
		if fieldPath != "" {
			if _, err := tx.Exec(ctx,
				`DELETE FROM report_filters WHERE report_id = $1 AND field_path = $2`,
				reportID, fieldPath); err != nil {
				return fmt.Errorf("delete orphaned filters: %w", err)
			}
		}
		return renumberColumns(ctx, tx, reportID)
	})
}

// ReorderColumns rewrites the display order to match the given ID sequence.
func (r *reportRepository) ReorderColumns(ctx context.Context, reportID uuid.UUID, columnIDs []uuid.UUID) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		for i, id := range columnIDs {
			tag, err := tx.Exec(ctx,
				`UPDATE report_columns SET position = $3 WHERE id = $1 AND report_id = $2`,
				id, reportID, i)
			if err != nil {
				return fmt.Errorf("reorder column: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("column %s: %w", id, ErrNotFound)
			}
		}
		return nil
	})
}

// AddFilter stores a filter clause.
func (r *reportRepository) AddFilter(ctx context.Context, reportID uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error) {
	var out domain.ReportFilter
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = insertFilter(ctx, tx, reportID, filter)
		return err
	})
	return out, err
}

func (r *reportRepository) UpdateFilter(ctx context.Context, reportID uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error) {
	value, err := json.Marshal(filter.Value)
	if err != nil {
		return domain.ReportFilter{}, fmt.Errorf("encode filter value: %w", err)
	}
	tag, err := r.conn.Pool.Exec(ctx,
		`UPDATE report_filters SET field_path = $3, operator = $4, value = $5
		 WHERE id = $1 AND report_id = $2`,
		filter.ID, reportID, filter.FieldPath, string(filter.Operator), value)
	if err != nil {
		return domain.ReportFilter{}, fmt.Errorf("update filter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ReportFilter{}, fmt.Errorf("filter %s: %w", filter.ID, ErrNotFound)
	}
	return filter, nil
}

func (r *reportRepository) DeleteFilter(ctx context.Context, reportID, filterID uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx,
		`DELETE FROM report_filters WHERE id = $1 AND report_id = $2`, filterID, reportID)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("filter %s: %w", filterID, ErrNotFound)
	}
	return nil
}

// AddGrouping appends a grouping level below the existing ones.
func (r *reportRepository) AddGrouping(ctx context.Context, reportID uuid.UUID, grouping domain.ReportGrouping) (domain.ReportGrouping, error) {
	var out domain.ReportGrouping
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM report_groupings WHERE report_id = $1`,
			reportID).Scan(&grouping.Order); err != nil {
			return fmt.Errorf("next grouping position: %w", err)
		}
		var err error
		out, err = insertGrouping(ctx, tx, reportID, grouping)
		return err
	})
	return out, err
}

// DeleteGrouping removes a grouping level and renumbers the rest so nesting
// depths stay contiguous.
func (r *reportRepository) DeleteGrouping(ctx context.Context, reportID, groupingID uuid.UUID) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM report_groupings WHERE id = $1 AND report_id = $2`, groupingID, reportID)
		if err != nil {
			return fmt.Errorf("delete grouping: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("grouping %s: %w", groupingID, ErrNotFound)
		}
		_, err = tx.Exec(ctx,
			`UPDATE report_groupings g SET position = ranked.new_position
			 FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY position) - 1 AS new_position
			       FROM report_groupings WHERE report_id = $1) ranked
			 WHERE g.id = ranked.id`, reportID)
		if err != nil {
			return fmt.Errorf("renumber groupings: %w", err)
		}
		return nil
	})
}

func (r *reportRepository) AddCalculatedField(ctx context.Context, reportID uuid.UUID, field domain.CalculatedField) (domain.CalculatedField, error) {
	var out domain.CalculatedField
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM calculated_fields WHERE report_id = $1`,
			reportID).Scan(&field.Order); err != nil {
			return fmt.Errorf("next calculated field position: %w", err)
		}
		var err error
		out, err = insertCalculatedField(ctx, tx, reportID, field)
		return err
	})
	return out, err
}

func (r *reportRepository) DeleteCalculatedField(ctx context.Context, reportID, fieldID uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx,
		`DELETE FROM calculated_fields WHERE id = $1 AND report_id = $2`, fieldID, reportID)
	if err != nil {
		return fmt.Errorf("delete calculated field: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("calculated field %s: %w", fieldID, ErrNotFound)
	}
	return nil
}

func insertColumn(ctx context.Context, tx pgx.Tx, reportID uuid.UUID, col domain.ReportColumn) (domain.ReportColumn, error) {
	rules, err := json.Marshal(col.ConditionalFormatting)
	if err != nil {
		return domain.ReportColumn{}, fmt.Errorf("encode conditional formatting: %w", err)
	}
	row := tx.QueryRow(ctx,
		`INSERT INTO report_columns (
			report_id, name, field_path, display_name, position, is_visible,
			aggregation, formula, is_formula, formatting_type, decimal_places,
			currency_symbol, date_format, is_sortable, conditional_formatting,
			condition, window_size, time_unit, weight_field)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 RETURNING id`,
		reportID, col.Name, col.FieldPath, col.DisplayName, col.Order, col.IsVisible,
		string(col.Aggregation), col.Formula, col.IsFormula, string(col.FormattingType),
		col.DecimalPlaces, col.CurrencySymbol, col.DateFormat, col.IsSortable, rules,
		col.Condition, col.WindowSize, string(col.TimeUnit), col.WeightField)
	if err := row.Scan(&col.ID); err != nil {
		return domain.ReportColumn{}, fmt.Errorf("insert column: %w", err)
	}
	return col, nil
}

func insertFilter(ctx context.Context, tx pgx.Tx, reportID uuid.UUID, filter domain.ReportFilter) (domain.ReportFilter, error) {
	value, err := json.Marshal(filter.Value)
	if err != nil {
		return domain.ReportFilter{}, fmt.Errorf("encode filter value: %w", err)
	}
	row := tx.QueryRow(ctx,
		`INSERT INTO report_filters (report_id, field_path, operator, value)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		reportID, filter.FieldPath, string(filter.Operator), value)
	if err := row.Scan(&filter.ID); err != nil {
		return domain.ReportFilter{}, fmt.Errorf("insert filter: %w", err)
	}
	return filter, nil
}

func insertGrouping(ctx context.Context, tx pgx.Tx, reportID uuid.UUID, grouping domain.ReportGrouping) (domain.ReportGrouping, error) {
	row := tx.QueryRow(ctx,
		`INSERT INTO report_groupings (report_id, field_path, position)
		 VALUES ($1, $2, $3) RETURNING id`,
		reportID, grouping.FieldPath, grouping.Order)
	if err := row.Scan(&grouping.ID); err != nil {
		return domain.ReportGrouping{}, fmt.Errorf("insert grouping: %w", err)
	}
	return grouping, nil
}

func insertCalculatedField(ctx context.Context, tx pgx.Tx, reportID uuid.UUID, field domain.CalculatedField) (domain.CalculatedField, error) {
	row := tx.QueryRow(ctx,
		`INSERT INTO calculated_fields (report_id, name, display_name, expression, position)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		reportID, field.Name, field.DisplayName, field.Formula, field.Order)
	if err := row.Scan(&field.ID); err != nil {
		return domain.CalculatedField{}, fmt.Errorf("insert calculated field: %w", err)
	}
	return field, nil
}

func renumberColumns(ctx context.Context, tx pgx.Tx, reportID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE report_columns c SET position = ranked.new_position
		 FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY position) - 1 AS new_position
		       FROM report_columns WHERE report_id = $1) ranked
		 WHERE c.id = ranked.id`, reportID)
	if err != nil {
		return fmt.Errorf("renumber columns: %w", err)
	}
	return nil
}

func (r *reportRepository) loadColumns(ctx context.Context, reportID uuid.UUID) ([]domain.ReportColumn, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT id, name, field_path, display_name, position, is_visible,
			aggregation, formula, is_formula, formatting_type, decimal_places,
			currency_symbol, date_format, is_sortable, conditional_formatting,
			condition, window_size, time_unit, weight_field
		 FROM report_columns WHERE report_id = $1 ORDER BY position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	defer rows.Close()

	var cols []domain.ReportColumn
	for rows.Next() {
		var col domain.ReportColumn
		var aggregation, formatting, timeUnit string
		var rules []byte
		if err := rows.Scan(&col.ID, &col.Name, &col.FieldPath, &col.DisplayName, &col.Order,
			&col.IsVisible, &aggregation, &col.Formula, &col.IsFormula, &formatting,
			&col.DecimalPlaces, &col.CurrencySymbol, &col.DateFormat, &col.IsSortable, &rules,
			&col.Condition, &col.WindowSize, &timeUnit, &col.WeightField); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Aggregation = domain.AggregationKind(aggregation)
		col.FormattingType = domain.FormatType(formatting)
		col.TimeUnit = domain.TimeUnit(timeUnit)
		if len(rules) > 0 {
			if err := json.Unmarshal(rules, &col.ConditionalFormatting); err != nil {
				return nil, fmt.Errorf("decode conditional formatting: %w", err)
			}
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (r *reportRepository) loadFilters(ctx context.Context, reportID uuid.UUID) ([]domain.ReportFilter, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT id, field_path, operator, value FROM report_filters WHERE report_id = $1 ORDER BY id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("load filters: %w", err)
	}
	defer rows.Close()

	var filters []domain.ReportFilter
	for rows.Next() {
		var f domain.ReportFilter
		var operator string
		var value []byte
		if err := rows.Scan(&f.ID, &f.FieldPath, &operator, &value); err != nil {
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		f.Operator = domain.FilterOperator(operator)
		if len(value) > 0 {
			if err := json.Unmarshal(value, &f.Value); err != nil {
				return nil, fmt.Errorf("decode filter value: %w", err)
			}
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

func (r *reportRepository) loadGroupings(ctx context.Context, reportID uuid.UUID) ([]domain.ReportGrouping, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT id, field_path, position FROM report_groupings WHERE report_id = $1 ORDER BY position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("load groupings: %w", err)
	}
	defer rows.Close()

	var groupings []domain.ReportGrouping
	for rows.Next() {
		var g domain.ReportGrouping
		if err := rows.Scan(&g.ID, &g.FieldPath, &g.Order); err != nil {
			return nil, fmt.Errorf("scan grouping: %w", err)
		}
		groupings = append(groupings, g)
	}
	return groupings, rows.Err()
}

func (r *reportRepository) loadCalculatedFields(ctx context.Context, reportID uuid.UUID) ([]domain.CalculatedField, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT id, name, display_name, expression, position FROM calculated_fields WHERE report_id = $1 ORDER BY position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("load calculated fields: %w", err)
	}
	defer rows.Close()

	var fields []domain.CalculatedField
	for rows.Next() {
		var f domain.CalculatedField
		if err := rows.Scan(&f.ID, &f.Name, &f.DisplayName, &f.Formula, &f.Order); err != nil {
			return nil, fmt.Errorf("scan calculated field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}
