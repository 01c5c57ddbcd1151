// Package filters turns stored report filter clauses into an executable
// predicate. Clauses that fail resolution or coercion are dropped silently;
// partial filter application is the documented failure mode.
package filters

import (
	"strings"
	"time"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/schema"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// Compile groups the stored filters by field path and builds the predicate:
// clauses for the same field combine with OR, distinct fields with AND.
// Field paths that do not resolve against the root type's schema are skipped
// entirely, as are clauses whose values cannot be coerced for the resolved
// terminal kind.
func Compile(stored []domain.ReportFilter, rootType string, provider schema.Provider) domain.Predicate {
	var order []string
	byField := make(map[string][]domain.ReportFilter)
	for _, f := range stored {
		if f.FieldPath == "" {
			continue
		}
		if _, ok := byField[f.FieldPath]; !ok {
			order = append(order, f.FieldPath)
		}
		byField[f.FieldPath] = append(byField[f.FieldPath], f)
	}

	var predicate domain.Predicate
	for _, fieldPath := range order {
		kind, ok := schema.TerminalKind(provider, rootType, fieldPath)
		if !ok {
			// Stale or unknown field path; the whole group is inert.
			continue
		}
		group := domain.ClauseGroup{FieldPath: fieldPath}
		for _, f := range byField[fieldPath] {
			clause, ok := compileClause(f, kind)
			if !ok {
				continue
			}
			group.Clauses = append(group.Clauses, clause)
		}
		if len(group.Clauses) > 0 {
			predicate.Groups = append(predicate.Groups, group)
		}
	}
	return predicate
}

func compileClause(f domain.ReportFilter, kind schema.FieldKind) (domain.Clause, bool) {
	switch f.Operator {
	case domain.FilterIn:
		values, ok := listValue(f.Value)
		if !ok || len(values) == 0 {
			return domain.Clause{}, false
		}
		if kind.IsNumeric() {
			converted := make([]any, 0, len(values))
			for _, v := range values {
				n, ok := domain.ToFloat(v)
				if !ok {
					return domain.Clause{}, false
				}
				converted = append(converted, n)
			}
			values = converted
		}
		return domain.Clause{Operator: domain.FilterIn, Values: values}, true

	case domain.FilterRange:
		values, ok := listValue(f.Value)
		if !ok || len(values) != 2 {
			return domain.Clause{}, false
		}
		low, high := values[0], values[1]
		switch {
		case kind.IsNumeric():
			lowN, okLow := domain.ToFloat(low)
			highN, okHigh := domain.ToFloat(high)
			if !okLow || !okHigh {
				return domain.Clause{}, false
			}
			return domain.Clause{Operator: domain.FilterRange, Low: lowN, High: highN}, true
		case kind.IsTemporal():
			lowT, okLow := parseDate(low)
			highT, okHigh := parseDate(high)
			if !okLow || !okHigh {
				return domain.Clause{}, false
			}
			return domain.Clause{Operator: domain.FilterRange, Low: lowT, High: highT}, true
		}
		return domain.Clause{Operator: domain.FilterRange, Low: low, High: high}, true

	case domain.FilterIsNull:
		switch v := f.Value.(type) {
		case bool:
			return domain.Clause{Operator: domain.FilterIsNull, Value: v}, true
		case string:
			return domain.Clause{Operator: domain.FilterIsNull, Value: strings.EqualFold(strings.TrimSpace(v), "true")}, true
		}
		return domain.Clause{}, false

	case domain.FilterEquals, domain.FilterGreaterThan, domain.FilterLessThan, domain.FilterGTE, domain.FilterLTE:
		value := f.Value
		if kind.IsNumeric() {
			if _, isBool := value.(bool); !isBool {
				n, ok := domain.ToFloat(value)
				if !ok {
					return domain.Clause{}, false
				}
				value = n
			}
		}
		return domain.Clause{Operator: f.Operator, Value: value}, true

	case domain.FilterContains:
		return domain.Clause{Operator: domain.FilterContains, Value: f.Value}, true
	}
	return domain.Clause{}, false
}

// listValue normalizes a membership or range operand: comma-separated strings
// split into trimmed elements, JSON arrays pass through.
func listValue(value any) ([]any, bool) {
	switch v := value.(type) {
	case string:
		parts := strings.Split(v, ",")
		var values []any
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				values = append(values, p)
			}
		}
		return values, true
	case []any:
		return append([]any(nil), v...), true
	case []string:
		values := make([]any, 0, len(v))
		for _, s := range v {
			values = append(values, s)
		}
		return values, true
	}
	return nil, false
}

func parseDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
