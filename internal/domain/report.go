package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PathSeparator separates the segments of a field path. A segment that names a
// relation switches resolution to the related entity type, so
// "customer__name" reads the name field of the order's customer.
const PathSeparator = "__"

// AggregationKind identifies how a column is aggregated at subtotal and grand
// total level. The empty kind means no aggregation.
type AggregationKind string

const (
	AggregationNone AggregationKind = ""

	// Basic
	AggregationCount AggregationKind = "COUNT"
	AggregationSum   AggregationKind = "SUM"
	AggregationAvg   AggregationKind = "AVG"
	AggregationMin   AggregationKind = "MIN"
	AggregationMax   AggregationKind = "MAX"

	// Conditional
	AggregationCountDistinct AggregationKind = "COUNT_DISTINCT"
	AggregationCountIf       AggregationKind = "COUNT_IF"
	AggregationSumIf         AggregationKind = "SUM_IF"

	// Statistical
	AggregationStdDev   AggregationKind = "STDDEV"
	AggregationVariance AggregationKind = "VARIANCE"
	AggregationMedian   AggregationKind = "MEDIAN"

	// Time-based
	AggregationMonthSum  AggregationKind = "MONTH_SUM"
	AggregationYearSum   AggregationKind = "YEAR_SUM"
	AggregationYoYGrowth AggregationKind = "YOY_GROWTH"

	// Window functions
	AggregationRunningTotal AggregationKind = "RUNNING_TOTAL"
	AggregationRank         AggregationKind = "RANK"
	AggregationMovingAvg    AggregationKind = "MOVING_AVG"

	// Percentiles
	AggregationPercentile25 AggregationKind = "PERCENTILE_25"
	AggregationPercentile50 AggregationKind = "PERCENTILE_50"
	AggregationPercentile75 AggregationKind = "PERCENTILE_75"
	AggregationPercentile90 AggregationKind = "PERCENTILE_90"
)

// Percentile extracts the quantile from a PERCENTILE_N kind, returned in
// [0,1]. The second result is false for any other kind.
func (k AggregationKind) Percentile() (float64, bool) {
	const prefix = "PERCENTILE_"
	if !strings.HasPrefix(string(k), prefix) {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimPrefix(string(k), prefix), 64)
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n / 100, true
}

// IsWindow reports whether the kind produces a value per row rather than a
// single scalar.
func (k AggregationKind) IsWindow() bool {
	switch k {
	case AggregationRunningTotal, AggregationRank, AggregationMovingAvg:
		return true
	}
	return false
}

// IsTimeBased reports whether the kind resamples over a date axis.
func (k AggregationKind) IsTimeBased() bool {
	switch k {
	case AggregationMonthSum, AggregationYearSum, AggregationYoYGrowth:
		return true
	}
	return false
}

// FilterOperator names the comparison applied by a stored filter clause.
// Values mirror the lookup names report authors already use.
type FilterOperator string

const (
	FilterEquals      FilterOperator = "exact"
	FilterContains    FilterOperator = "icontains"
	FilterGreaterThan FilterOperator = "gt"
	FilterLessThan    FilterOperator = "lt"
	FilterGTE         FilterOperator = "gte"
	FilterLTE         FilterOperator = "lte"
	FilterIn          FilterOperator = "in"
	FilterRange       FilterOperator = "range"
	FilterIsNull      FilterOperator = "isnull"
)

// FormatType selects how a column value is rendered for display.
type FormatType string

const (
	FormatNumber     FormatType = "number"
	FormatCurrency   FormatType = "currency"
	FormatPercentage FormatType = "percentage"
	FormatDate       FormatType = "date"
	FormatDateTime   FormatType = "datetime"
	FormatBoolean    FormatType = "boolean"
	FormatText       FormatType = "text"
)

// TimeUnit is the resample granularity for time-based aggregations.
type TimeUnit string

const (
	TimeUnitDay     TimeUnit = "DAY"
	TimeUnitWeek    TimeUnit = "WEEK"
	TimeUnitMonth   TimeUnit = "MONTH"
	TimeUnitQuarter TimeUnit = "QUARTER"
	TimeUnitYear    TimeUnit = "YEAR"
)

// ConditionalRule pairs a condition expression with the style applied when it
// matches. Rules are evaluated in order; the first match wins.
type ConditionalRule struct {
	Condition string            `json:"condition"`
	Style     map[string]string `json:"style"`
}

// ReportColumn describes one output column of a report. A formula column has
// an empty field path and derives its value per row from the formula template.
type ReportColumn struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	FieldPath   string    `json:"field_path"`
	DisplayName string    `json:"display_name"`
	Order       int       `json:"order"`
	IsVisible   bool      `json:"is_visible"`

	Aggregation AggregationKind `json:"aggregation,omitempty"`
	Formula     string          `json:"formula,omitempty"`
	IsFormula   bool            `json:"is_formula"`

	FormattingType FormatType `json:"formatting_type"`
	DecimalPlaces  *int       `json:"decimal_places,omitempty"`
	CurrencySymbol string     `json:"currency_symbol"`
	DateFormat     string     `json:"date_format"`
	IsSortable     bool       `json:"is_sortable"`

	ConditionalFormatting []ConditionalRule `json:"conditional_formatting,omitempty"`

	// Auxiliary parameters for advanced aggregations.
	Condition   string   `json:"condition,omitempty"`
	WindowSize  int      `json:"window_size,omitempty"`
	TimeUnit    TimeUnit `json:"time_unit,omitempty"`
	WeightField string   `json:"weight_field,omitempty"`
}

// Key returns the name under which this column's values are stored in a row.
// Database-backed columns use their field path; formula columns have none and
// fall back to the column name.
func (c ReportColumn) Key() string {
	if c.FieldPath != "" {
		return c.FieldPath
	}
	return c.Name
}

// HeaderLabel returns the text shown in column headers: the display name
// when set, the column name otherwise.
func (c ReportColumn) HeaderLabel() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// ReportFilter is one stored filter clause. Value is JSON-shaped: a scalar, a
// comma-separated string or list for membership/range operators, or a
// boolean-like string for isnull.
type ReportFilter struct {
	ID        uuid.UUID      `json:"id"`
	FieldPath string         `json:"field_path"`
	Operator  FilterOperator `json:"operator"`
	Value     any            `json:"value"`
}

// ReportGrouping is one level of grouping. Order defines nesting depth; the
// lowest order is the outermost group.
type ReportGrouping struct {
	ID        uuid.UUID `json:"id"`
	FieldPath string    `json:"field_path"`
	Order     int       `json:"order"`
}

// CalculatedField is a named formula owned by the report. Its order is
// persisted but not yet consumed by execution.
type CalculatedField struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Formula     string    `json:"formula"`
	Order       int       `json:"order"`
}

// ReportDefinition is the declarative description of a report: what to query,
// filter, group, aggregate, and display. It owns all child records.
type ReportDefinition struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RootType    string    `json:"root_type"`

	Columns          []ReportColumn    `json:"columns"`
	Filters          []ReportFilter    `json:"filters"`
	Groupings        []ReportGrouping  `json:"groupings"`
	CalculatedFields []CalculatedField `json:"calculated_fields,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisibleColumns returns the visible columns sorted by display order. Order
// values are display precedence only; gaps are tolerated.
func (r ReportDefinition) VisibleColumns() []ReportColumn {
	visible := make([]ReportColumn, 0, len(r.Columns))
	for _, col := range r.Columns {
		if col.IsVisible {
			visible = append(visible, col)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].Order < visible[j].Order })
	return visible
}

// OrderedGroupings returns the groupings sorted by order, outermost first.
func (r ReportDefinition) OrderedGroupings() []ReportGrouping {
	groupings := append([]ReportGrouping(nil), r.Groupings...)
	sort.SliceStable(groupings, func(i, j int) bool { return groupings[i].Order < groupings[j].Order })
	return groupings
}

// GroupFieldPaths returns the ordered field paths grouping is applied on.
func (r ReportDefinition) GroupFieldPaths() []string {
	groupings := r.OrderedGroupings()
	paths := make([]string, 0, len(groupings))
	for _, g := range groupings {
		paths = append(paths, g.FieldPath)
	}
	return paths
}

// ProjectedFieldPaths returns the deduplicated field paths the query executor
// must fetch: every visible non-formula column plus every grouping field.
func (r ReportDefinition) ProjectedFieldPaths() []string {
	seen := make(map[string]struct{})
	var paths []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	for _, col := range r.VisibleColumns() {
		if !col.IsFormula {
			add(col.FieldPath)
		}
	}
	for _, path := range r.GroupFieldPaths() {
		add(path)
	}
	return paths
}

// NormalizeColumnOrder reassigns contiguous zero-based order values while
// preserving the current relative order. Called after structural changes.
func NormalizeColumnOrder(columns []ReportColumn) {
	sort.SliceStable(columns, func(i, j int) bool { return columns[i].Order < columns[j].Order })
	for i := range columns {
		columns[i].Order = i
	}
}

// NormalizeGroupingOrder reassigns contiguous zero-based order values for
// groupings, preserving relative order.
func NormalizeGroupingOrder(groupings []ReportGrouping) {
	sort.SliceStable(groupings, func(i, j int) bool { return groupings[i].Order < groupings[j].Order })
	for i := range groupings {
		groupings[i].Order = i
	}
}
