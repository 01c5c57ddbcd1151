package domain

import "encoding/json"

// RowKind discriminates the three row variants a grouped result contains.
type RowKind int

const (
	RowDetail RowKind = iota
	RowGroup
	RowSubtotal
)

func (k RowKind) String() string {
	switch k {
	case RowGroup:
		return "group"
	case RowSubtotal:
		return "subtotal"
	default:
		return "detail"
	}
}

// Row is one emitted result row. Values is keyed by column key (field path,
// or column name for formula columns). GroupLevel indicates nesting depth for
// indentation; RecordCount and Expanded are meaningful on group rows only.
type Row struct {
	Kind        RowKind
	Values      map[string]any
	GroupLevel  int
	RecordCount int
	Expanded    bool

	// Formatted holds the display rendering of each column value per its
	// formatting descriptor.
	Formatted map[string]string

	// Styles holds the first-matching conditional-formatting style per
	// column, when any rule matched.
	Styles map[string]map[string]string
}

// Clone returns a deep-enough copy: the value map is copied, values are
// shared.
func (r Row) Clone() Row {
	clone := r
	clone.Values = make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		clone.Values[k] = v
	}
	if r.Formatted != nil {
		clone.Formatted = make(map[string]string, len(r.Formatted))
		for k, v := range r.Formatted {
			clone.Formatted[k] = v
		}
	}
	return clone
}

// MarshalJSON flattens the row into a single object carrying the value map
// plus the marker fields consumers key off of.
func (r Row) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Values)+6)
	for k, v := range r.Values {
		out[k] = v
	}
	out["group_level"] = r.GroupLevel
	switch r.Kind {
	case RowGroup:
		out["is_group_row"] = true
		out["is_expanded"] = r.Expanded
		out["record_count"] = r.RecordCount
	case RowSubtotal:
		out["is_subtotal"] = true
	default:
		out["is_group_row"] = false
		out["is_detail_row"] = true
	}
	if len(r.Formatted) > 0 {
		out["formatted"] = r.Formatted
	}
	if len(r.Styles) > 0 {
		out["styles"] = r.Styles
	}
	return json.Marshal(out)
}

// GroupSpan records the half-open row index range [Start, End) a group's full
// emission (group row, detail rows, subtotal row) occupies. The pager treats
// each span as atomic.
type GroupSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ResultSet is the transform pipeline's output: the full row sequence before
// pagination, grand totals over the entire filtered set, the group spans when
// grouping was active (nil otherwise), and any degradation warnings.
type ResultSet struct {
	Rows        []Row          `json:"rows"`
	GrandTotals map[string]any `json:"grand_totals"`
	GroupSpans  []GroupSpan    `json:"group_spans,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// Grouped reports whether the result was produced with grouping active.
func (rs ResultSet) Grouped() bool { return rs.GroupSpans != nil }
