package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clause is one executable comparison against a single field. Which value
// field carries the operand depends on the operator: scalar operators use
// Value, membership uses Values, range uses Low/High, isnull carries a bool
// in Value.
type Clause struct {
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
	Values   []any          `json:"values,omitempty"`
	Low      any            `json:"low,omitempty"`
	High     any            `json:"high,omitempty"`
}

// ClauseGroup holds every surviving clause for one field path. Clauses within
// a group combine with OR.
type ClauseGroup struct {
	FieldPath string   `json:"field_path"`
	Clauses   []Clause `json:"clauses"`
}

// Predicate is the backend-executable filter shape: AND across clause groups,
// OR within each group. It can be pushed down to a query backend or applied
// in memory via Matches.
type Predicate struct {
	Groups []ClauseGroup `json:"groups,omitempty"`
}

// IsEmpty reports whether the predicate constrains nothing.
func (p Predicate) IsEmpty() bool { return len(p.Groups) == 0 }

// Matches applies the predicate to a projected row keyed by field path.
func (p Predicate) Matches(row map[string]any) bool {
	for _, group := range p.Groups {
		value := row[group.FieldPath]
		matched := false
		for _, clause := range group.Clauses {
			if clause.matches(value) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (c Clause) matches(value any) bool {
	switch c.Operator {
	case FilterEquals:
		return looseEqual(value, c.Value)
	case FilterContains:
		s, ok := asString(value)
		if !ok {
			return false
		}
		needle, ok := asString(c.Value)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	case FilterGreaterThan:
		cmp, ok := CompareValues(value, c.Value)
		return ok && cmp > 0
	case FilterLessThan:
		cmp, ok := CompareValues(value, c.Value)
		return ok && cmp < 0
	case FilterGTE:
		cmp, ok := CompareValues(value, c.Value)
		return ok && cmp >= 0
	case FilterLTE:
		cmp, ok := CompareValues(value, c.Value)
		return ok && cmp <= 0
	case FilterIn:
		for _, candidate := range c.Values {
			if looseEqual(value, candidate) {
				return true
			}
		}
		return false
	case FilterRange:
		low, okLow := CompareValues(value, c.Low)
		high, okHigh := CompareValues(value, c.High)
		return okLow && okHigh && low >= 0 && high <= 0
	case FilterIsNull:
		wantNull, _ := c.Value.(bool)
		return (value == nil) == wantNull
	}
	return false
}

// looseEqual compares two values the way a report author expects: numbers
// compare numerically regardless of Go type, everything else by canonical
// string form. Nil only equals nil.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, okA := ToFloat(a); okA {
		if fb, okB := ToFloat(b); okB {
			return fa == fb
		}
	}
	sa, okA := asString(a)
	sb, okB := asString(b)
	return okA && okB && sa == sb
}

// CompareValues orders two values, returning -1/0/1 and whether the pair is
// comparable. Numbers order numerically, times chronologically, strings
// lexicographically. Nil compares with nothing.
func CompareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	ta, aIsTime := a.(time.Time)
	tb, bIsTime := b.(time.Time)
	// A time on one side pulls a date-like string on the other into the
	// chronological comparison instead of degrading to Stringer text.
	if aIsTime && !bIsTime {
		tb, bIsTime = parseTimeString(b)
	} else if bIsTime && !aIsTime {
		ta, aIsTime = parseTimeString(a)
	}
	if aIsTime && bIsTime {
		switch {
		case ta.Before(tb):
			return -1, true
		case ta.After(tb):
			return 1, true
		}
		return 0, true
	}
	if fa, okA := ToFloat(a); okA {
		if fb, okB := ToFloat(b); okB {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	sa, okA := asString(a)
	sb, okB := asString(b)
	if !okA || !okB {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

var compareTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

func parseTimeString(value any) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	trimmed := strings.TrimSpace(s)
	for _, layout := range compareTimeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToFloat converts any numeric value (or numeric string) to float64.
func ToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case nil:
		return "", false
	default:
		if _, ok := ToFloat(value); ok {
			return fmt.Sprintf("%v", value), true
		}
		return fmt.Sprintf("%v", value), true
	}
}
