package pipeline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/formula"
	"github.com/rpattn/reportql/internal/schema"
)

// Input is everything the transform stage needs: the raw rows from the
// executor plus the column, grouping and sort configuration of the report.
type Input struct {
	Rows          []map[string]any
	Columns       []domain.ReportColumn
	Groupings     []domain.ReportGrouping
	RootType      string
	Schema        schema.Provider
	SortField     string
	SortDirection string
}

// Transform runs the full tabular pipeline: sorting, group key
// canonicalization, grouping with subtotals, aggregation, formula
// evaluation, rounding, display formatting and conditional styles.
// A panic anywhere in the pipeline degrades to an empty result set with a
// warning instead of failing the request.
func Transform(in Input, log zerolog.Logger) (result domain.ResultSet) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("root_type", in.RootType).
				Msg("report transform recovered from panic")
			result = domain.ResultSet{
				Rows:     []domain.Row{},
				Warnings: []string{fmt.Sprintf("report could not be computed: %v", r)},
			}
		}
	}()

	t := &transformer{in: in}
	t.groupPaths = groupingPaths(in.Groupings)
	t.dateAxis = t.findDateAxis()

	canonicalizeGroupFields(in.Rows, t.groupPaths)
	t.sortRows(in.Rows)

	var rows []domain.Row
	if len(t.groupPaths) == 0 {
		t.applyWindowColumns(in.Rows)
		rows = t.detailRows(in.Rows, 0)
	} else {
		rows = t.groupRows(in.Rows, 0)
	}

	for i := range rows {
		t.applyFormulas(&rows[i])
	}

	grand := t.grandTotals(in.Rows)

	for i := range rows {
		roundRowValues(rows[i].Values)
		t.formatRow(&rows[i])
	}

	return domain.ResultSet{
		Rows:        rows,
		GrandTotals: grand,
		GroupSpans:  t.spans,
		Warnings:    t.warnings,
	}
}

type transformer struct {
	in         Input
	groupPaths []string
	dateAxis   string
	spans      []domain.GroupSpan
	warnings   []string
	warned     map[string]struct{}
}

func (t *transformer) warnOnce(key, msg string) {
	if t.warned == nil {
		t.warned = make(map[string]struct{})
	}
	if _, seen := t.warned[key]; seen {
		return
	}
	t.warned[key] = struct{}{}
	t.warnings = append(t.warnings, msg)
}

func groupingPaths(groupings []domain.ReportGrouping) []string {
	ordered := append([]domain.ReportGrouping(nil), groupings...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	paths := make([]string, 0, len(ordered))
	for _, g := range ordered {
		if g.FieldPath != "" {
			paths = append(paths, g.FieldPath)
		}
	}
	return paths
}

// findDateAxis picks the first grouping field with a temporal schema kind;
// time-based aggregations resample along it.
func (t *transformer) findDateAxis() string {
	if t.in.Schema == nil {
		return ""
	}
	for _, path := range t.groupPaths {
		kind, ok := schema.TerminalKind(t.in.Schema, t.in.RootType, path)
		if ok && kind.IsTemporal() {
			return path
		}
	}
	return ""
}

// canonicalizeGroupFields rewrites grouping field values in place so equal
// keys compare equal regardless of source representation: dates become
// YYYY-MM-DD strings, floats round to two decimals, booleans become Yes/No,
// and nil becomes "N/A".
func canonicalizeGroupFields(rows []map[string]any, paths []string) {
	for _, row := range rows {
		for _, path := range paths {
			row[path] = canonicalGroupValue(row[path])
		}
	}
}

func canonicalGroupValue(v any) any {
	switch val := v.(type) {
	case nil:
		return "N/A"
	case time.Time:
		return val.Format("2006-01-02")
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		return math.Round(val*100) / 100
	case float32:
		return math.Round(float64(val)*100) / 100
	case string:
		if tm, ok := asTime(val); ok && len(val) >= 10 {
			return tm.Format("2006-01-02")
		}
		return val
	}
	return v
}

// sortRows orders rows by the grouping fields first, so groups come out
// contiguous, then by the requested sort field within each group.
func (t *transformer) sortRows(rows []map[string]any) {
	keys := append([]string(nil), t.groupPaths...)
	if t.in.SortField != "" {
		keys = append(keys, t.in.SortField)
	}
	if len(keys) == 0 {
		return
	}
	desc := t.in.SortDirection == "desc"
	sort.SliceStable(rows, func(i, j int) bool {
		for n, key := range keys {
			cmp, ok := domain.CompareValues(rows[i][key], rows[j][key])
			if !ok || cmp == 0 {
				continue
			}
			if desc && n == len(keys)-1 && key == t.in.SortField {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// groupRows partitions sorted rows by the grouping field at the given level
// and emits a group row, the nested content, and a subtotal row per group.
func (t *transformer) groupRows(rows []map[string]any, level int) []domain.Row {
	path := t.groupPaths[level]
	var out []domain.Row
	start := 0
	for start < len(rows) {
		end := start + 1
		for end < len(rows) && sameGroupValue(rows[start][path], rows[end][path]) {
			end++
		}
		partition := rows[start:end]

		groupRow := domain.Row{
			Kind:        domain.RowGroup,
			Values:      t.groupKeyValues(partition[0], level),
			GroupLevel:  level,
			RecordCount: len(partition),
			Expanded:    true,
		}
		spanStart := len(out)
		out = append(out, groupRow)

		if level+1 < len(t.groupPaths) {
			out = append(out, t.groupRows(partition, level+1)...)
		} else {
			t.applyWindowColumns(partition)
			out = append(out, t.detailRows(partition, level)...)
		}

		subtotal := domain.Row{
			Kind:        domain.RowSubtotal,
			Values:      t.groupKeyValues(partition[0], level),
			GroupLevel:  level,
			RecordCount: len(partition),
		}
		t.applyAggregates(subtotal.Values, partition)
		out = append(out, subtotal)

		if level == 0 {
			t.spans = append(t.spans, domain.GroupSpan{Start: spanStart, End: len(out)})
		}
		start = end
	}
	return out
}

func sameGroupValue(a, b any) bool {
	if cmp, ok := domain.CompareValues(a, b); ok {
		return cmp == 0
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func (t *transformer) groupKeyValues(row map[string]any, level int) map[string]any {
	values := make(map[string]any, level+1)
	for i := 0; i <= level; i++ {
		values[t.groupPaths[i]] = row[t.groupPaths[i]]
	}
	return values
}

// detailRows emits detail rows at the level of the group containing them.
func (t *transformer) detailRows(rows []map[string]any, level int) []domain.Row {
	out := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		values := make(map[string]any, len(row))
		for k, v := range row {
			values[k] = v
		}
		out = append(out, domain.Row{
			Kind:       domain.RowDetail,
			Values:     values,
			GroupLevel: level,
		})
	}
	return out
}

// applyWindowColumns writes the per-row series of window aggregations back
// into the detail rows of a partition.
func (t *transformer) applyWindowColumns(rows []map[string]any) {
	for _, col := range t.in.Columns {
		if !col.Aggregation.IsWindow() {
			continue
		}
		key := col.Key()
		values := columnValues(rows, key)
		series, ok := AggregateSeries(col.Aggregation, values, AggregateOptions{
			WindowSize: col.WindowSize,
		})
		if !ok {
			t.warnOnce("window:"+key, fmt.Sprintf("column %q: %s needs a window size", col.Name, col.Aggregation))
			continue
		}
		for i, row := range rows {
			row[key] = series[i]
		}
	}
}

// applyAggregates computes each aggregated column over a partition's detail
// rows and stores the result under the column key in dst. Kinds that cannot
// be computed in this context leave the cell empty and record a warning.
func (t *transformer) applyAggregates(dst map[string]any, rows []map[string]any) {
	var axis []time.Time
	var hasAxis []bool
	for _, col := range t.in.Columns {
		if col.Aggregation == "" || col.IsFormula {
			continue
		}
		key := col.Key()
		values := columnValues(rows, key)
		if col.Aggregation.IsWindow() {
			// series already materialized on the detail rows
			if len(values) > 0 {
				dst[key] = values[0]
			}
			continue
		}
		opts := AggregateOptions{
			Condition:  col.Condition,
			WindowSize: col.WindowSize,
			TimeUnit:   col.TimeUnit,
			Rows:       rows,
		}
		if col.Aggregation.IsTimeBased() {
			if axis == nil {
				axis, hasAxis = t.timeAxis(rows)
			}
			opts.TimeAxis = axis
			opts.HasAxis = hasAxis
		}
		result, ok := AggregateScalar(col.Aggregation, values, opts)
		if !ok {
			t.warnOnce("agg:"+key, fmt.Sprintf("column %q: %s could not be computed", col.Name, col.Aggregation))
			continue
		}
		dst[key] = result
	}
}

func (t *transformer) timeAxis(rows []map[string]any) ([]time.Time, []bool) {
	axis := make([]time.Time, len(rows))
	has := make([]bool, len(rows))
	if t.dateAxis == "" {
		return axis, has
	}
	for i, row := range rows {
		if tm, ok := asTime(row[t.dateAxis]); ok {
			axis[i] = tm
			has[i] = true
		}
	}
	return axis, has
}

func columnValues(rows []map[string]any, key string) []any {
	values := make([]any, len(rows))
	for i, row := range rows {
		values[i] = row[key]
	}
	return values
}

// applyFormulas evaluates formula columns against a row's own values.
// Detail rows see their projected fields, subtotal rows see the group key
// plus the aggregates computed for the group, and group rows see their key
// fields plus the record count.
func (t *transformer) applyFormulas(row *domain.Row) {
	env := row.Values
	if row.Kind == domain.RowGroup {
		env = make(map[string]any, len(row.Values)+1)
		for k, v := range row.Values {
			env[k] = v
		}
		env["record_count"] = row.RecordCount
	}
	for _, col := range t.in.Columns {
		if !col.IsFormula || col.Formula == "" {
			continue
		}
		expr := formula.Substitute(col.Formula, env)
		result, err := formula.Eval(expr, env)
		if err != nil {
			t.warnOnce("formula:"+col.Key(), fmt.Sprintf("column %q: formula error: %v", col.Name, err))
			row.Values[col.Key()] = nil
			continue
		}
		row.Values[col.Key()] = result
	}
}

// grandTotals aggregates every aggregated column over the full detail set,
// independent of grouping and pagination.
func (t *transformer) grandTotals(rows []map[string]any) map[string]any {
	totals := make(map[string]any)
	t.applyAggregates(totals, rows)
	roundRowValues(totals)
	if len(totals) == 0 {
		return nil
	}
	return totals
}

func roundRowValues(values map[string]any) {
	for k, v := range values {
		if f, ok := v.(float64); ok {
			values[k] = math.Round(f*100) / 100
		}
	}
}

// formatRow fills the row's display strings and conditional styles for
// every column value it carries.
func (t *transformer) formatRow(row *domain.Row) {
	for _, col := range t.in.Columns {
		key := col.Key()
		v, present := row.Values[key]
		if !present {
			continue
		}
		if row.Formatted == nil {
			row.Formatted = make(map[string]string)
		}
		row.Formatted[key] = FormatValue(v, col)
		if len(col.ConditionalFormatting) > 0 && row.Kind == domain.RowDetail {
			if style := ResolveStyle(col.ConditionalFormatting, v, row.Values); style != nil {
				if row.Styles == nil {
					row.Styles = make(map[string]map[string]string)
				}
				row.Styles[key] = style
			}
		}
	}
}
