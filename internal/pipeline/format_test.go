package pipeline

import (
	"testing"
	"time"

	"github.com/rpattn/reportql/internal/domain"
)

func intPtr(n int) *int { return &n }

func TestFormatNumberGroupsThousands(t *testing.T) {
	col := domain.ReportColumn{FormattingType: domain.FormatNumber}
	if got := FormatValue(1234567.891, col); got != "1,234,567.89" {
		t.Fatalf("expected grouped number, got %q", got)
	}
	if got := FormatValue(-1234.5, col); got != "-1,234.50" {
		t.Fatalf("expected negative grouping, got %q", got)
	}

	col.DecimalPlaces = intPtr(0)
	if got := FormatValue(1234.6, col); got != "1,235" {
		t.Fatalf("expected zero decimals, got %q", got)
	}
}

func TestFormatCurrency(t *testing.T) {
	col := domain.ReportColumn{FormattingType: domain.FormatCurrency}
	if got := FormatValue(1234.5, col); got != "$1,234.50" {
		t.Fatalf("expected default dollar symbol, got %q", got)
	}

	col.CurrencySymbol = "£"
	if got := FormatValue(99.9, col); got != "£99.90" {
		t.Fatalf("expected custom symbol, got %q", got)
	}
}

func TestFormatPercentageMultipliesByHundred(t *testing.T) {
	col := domain.ReportColumn{FormattingType: domain.FormatPercentage}
	if got := FormatValue(0.4567, col); got != "45.67%" {
		t.Fatalf("expected default two decimals, got %q", got)
	}

	col.DecimalPlaces = intPtr(1)
	if got := FormatValue(0.4567, col); got != "45.7%" {
		t.Fatalf("expected 45.7%%, got %q", got)
	}
}

func TestFormatDatePatterns(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 30, 45, 0, time.UTC)

	col := domain.ReportColumn{FormattingType: domain.FormatDate}
	if got := FormatValue(ts, col); got != "2024-03-05" {
		t.Fatalf("expected default date pattern, got %q", got)
	}

	col.DateFormat = "DD/MM/YYYY"
	if got := FormatValue(ts, col); got != "05/03/2024" {
		t.Fatalf("expected DD/MM/YYYY, got %q", got)
	}

	col = domain.ReportColumn{FormattingType: domain.FormatDateTime}
	if got := FormatValue(ts, col); got != "2024-03-05 14:30:45" {
		t.Fatalf("expected default datetime pattern, got %q", got)
	}

	// String timestamps parse before formatting.
	col = domain.ReportColumn{FormattingType: domain.FormatDate}
	if got := FormatValue("2024-03-05T14:30:45", col); got != "2024-03-05" {
		t.Fatalf("expected parsed string date, got %q", got)
	}
}

func TestFormatBoolean(t *testing.T) {
	col := domain.ReportColumn{FormattingType: domain.FormatBoolean}
	if got := FormatValue(true, col); got != "Yes" {
		t.Fatalf("expected Yes, got %q", got)
	}
	if got := FormatValue(false, col); got != "No" {
		t.Fatalf("expected No, got %q", got)
	}
}

func TestFormatFallbacks(t *testing.T) {
	col := domain.ReportColumn{FormattingType: domain.FormatNumber}
	if got := FormatValue("not a number", col); got != "not a number" {
		t.Fatalf("expected raw fallback for unparseable value, got %q", got)
	}
	if got := FormatValue(nil, col); got != "" {
		t.Fatalf("expected empty string for nil, got %q", got)
	}

	col = domain.ReportColumn{FormattingType: domain.FormatText}
	if got := FormatValue(42.0, col); got != "42" {
		t.Fatalf("expected whole float without decimals, got %q", got)
	}
}
