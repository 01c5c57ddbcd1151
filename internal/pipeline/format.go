package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/reportql/internal/domain"
)

// FormatValue renders a raw cell value into its display string per the
// column's formatting settings. Values that cannot be interpreted for the
// requested format fall back to their plain string rendering; nil renders
// as the empty string.
func FormatValue(v any, col domain.ReportColumn) string {
	if v == nil {
		return ""
	}
	switch col.FormattingType {
	case domain.FormatNumber:
		n, ok := domain.ToFloat(v)
		if !ok {
			return plainString(v)
		}
		return groupThousands(n, decimalPlaces(col, 2))
	case domain.FormatCurrency:
		n, ok := domain.ToFloat(v)
		if !ok {
			return plainString(v)
		}
		symbol := col.CurrencySymbol
		if symbol == "" {
			symbol = "$"
		}
		return symbol + groupThousands(n, decimalPlaces(col, 2))
	case domain.FormatPercentage:
		n, ok := domain.ToFloat(v)
		if !ok {
			return plainString(v)
		}
		return fmt.Sprintf("%.*f%%", decimalPlaces(col, 2), n*100)
	case domain.FormatDate:
		t, ok := asTime(v)
		if !ok {
			return plainString(v)
		}
		pattern := col.DateFormat
		if pattern == "" {
			pattern = "YYYY-MM-DD"
		}
		return t.Format(goLayout(pattern))
	case domain.FormatDateTime:
		t, ok := asTime(v)
		if !ok {
			return plainString(v)
		}
		pattern := col.DateFormat
		if pattern == "" {
			pattern = "YYYY-MM-DD HH:mm:ss"
		}
		return t.Format(goLayout(pattern))
	case domain.FormatBoolean:
		switch b := v.(type) {
		case bool:
			if b {
				return "Yes"
			}
			return "No"
		}
		return plainString(v)
	}
	return plainString(v)
}

func decimalPlaces(col domain.ReportColumn, fallback int) int {
	if col.DecimalPlaces != nil && *col.DecimalPlaces >= 0 {
		return *col.DecimalPlaces
	}
	return fallback
}

// groupThousands formats n with the given decimal places and comma
// separators in the integer part.
func groupThousands(n float64, places int) string {
	s := fmt.Sprintf("%.*f", places, n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + fracPart
	if neg {
		return "-" + out
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// goLayout converts a YYYY-MM-DD style pattern into a Go time layout.
var layoutReplacer = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

func goLayout(pattern string) string {
	return layoutReplacer.Replace(pattern)
}

func plainString(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case float64:
		return trimFloat(t)
	}
	return fmt.Sprintf("%v", v)
}

// trimFloat renders whole floats without a trailing ".00".
func trimFloat(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
