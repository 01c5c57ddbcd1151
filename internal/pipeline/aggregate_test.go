package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/rpattn/reportql/internal/domain"
)

func scalar(t *testing.T, kind domain.AggregationKind, values []any, opts AggregateOptions) any {
	t.Helper()
	got, ok := AggregateScalar(kind, values, opts)
	if !ok {
		t.Fatalf("%s: expected aggregation to compute", kind)
	}
	return got
}

func TestAggregateBasicKinds(t *testing.T) {
	values := []any{10.0, 20.0, nil, 30.0}

	if got := scalar(t, domain.AggregationCount, values, AggregateOptions{}); got != 3 {
		t.Fatalf("COUNT: expected 3, got %v", got)
	}
	if got := scalar(t, domain.AggregationSum, values, AggregateOptions{}); got != 60.0 {
		t.Fatalf("SUM: expected 60, got %v", got)
	}
	if got := scalar(t, domain.AggregationAvg, values, AggregateOptions{}); got != 20.0 {
		t.Fatalf("AVG: expected 20, got %v", got)
	}
	if got := scalar(t, domain.AggregationMin, values, AggregateOptions{}); got != 10.0 {
		t.Fatalf("MIN: expected 10, got %v", got)
	}
	if got := scalar(t, domain.AggregationMax, values, AggregateOptions{}); got != 30.0 {
		t.Fatalf("MAX: expected 30, got %v", got)
	}
}

func TestAggregateMinMaxFallBackToStrings(t *testing.T) {
	values := []any{"banana", "apple", "cherry"}
	if got := scalar(t, domain.AggregationMin, values, AggregateOptions{}); got != "apple" {
		t.Fatalf("expected lexicographic min, got %v", got)
	}
	if got := scalar(t, domain.AggregationMax, values, AggregateOptions{}); got != "cherry" {
		t.Fatalf("expected lexicographic max, got %v", got)
	}
}

func TestAggregateCountDistinct(t *testing.T) {
	values := []any{"a", "b", "a", nil, 1.0, 1.0}
	if got := scalar(t, domain.AggregationCountDistinct, values, AggregateOptions{}); got != 3 {
		t.Fatalf("expected 3 distinct non-null values, got %v", got)
	}
}

func TestAggregateConditionalKinds(t *testing.T) {
	rows := []map[string]any{
		{"status": "pending", "total": 10.0},
		{"status": "shipped", "total": 20.0},
		{"status": "pending", "total": 5.0},
	}
	values := []any{10.0, 20.0, 5.0}
	opts := AggregateOptions{Condition: "{status} == 'pending'", Rows: rows}

	if got := scalar(t, domain.AggregationCountIf, values, opts); got != 2 {
		t.Fatalf("COUNT_IF: expected 2, got %v", got)
	}
	if got := scalar(t, domain.AggregationSumIf, values, opts); got != 15.0 {
		t.Fatalf("SUM_IF: expected 15, got %v", got)
	}

	if _, ok := AggregateScalar(domain.AggregationSumIf, values, AggregateOptions{Rows: rows}); ok {
		t.Fatalf("expected SUM_IF without a condition to report not computable")
	}
}

func TestAggregateDispersion(t *testing.T) {
	values := []any{2.0, 4.0, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0}

	variance := scalar(t, domain.AggregationVariance, values, AggregateOptions{}).(float64)
	if variance != 4.0 {
		t.Fatalf("population VARIANCE: expected 4, got %v", variance)
	}
	stddev := scalar(t, domain.AggregationStdDev, values, AggregateOptions{}).(float64)
	if stddev != 2.0 {
		t.Fatalf("population STDDEV: expected 2, got %v", stddev)
	}
}

func TestAggregateMedianAndPercentiles(t *testing.T) {
	values := []any{1.0, 2.0, 3.0, 4.0}

	if got := scalar(t, domain.AggregationMedian, values, AggregateOptions{}); got != 2.5 {
		t.Fatalf("MEDIAN: expected 2.5, got %v", got)
	}
	if got := scalar(t, domain.AggregationPercentile25, values, AggregateOptions{}); got != 1.75 {
		t.Fatalf("PERCENTILE_25: expected 1.75, got %v", got)
	}
	if got := scalar(t, domain.AggregationPercentile75, values, AggregateOptions{}); got != 3.25 {
		t.Fatalf("PERCENTILE_75: expected 3.25, got %v", got)
	}
	if got := scalar(t, domain.AggregationPercentile90, values, AggregateOptions{}); math.Abs(got.(float64)-3.7) > 1e-9 {
		t.Fatalf("PERCENTILE_90: expected 3.7, got %v", got)
	}
}

func TestAggregateRunningTotalSeries(t *testing.T) {
	series, ok := AggregateSeries(domain.AggregationRunningTotal, []any{1.0, 2.0, nil, 4.0}, AggregateOptions{})
	if !ok {
		t.Fatalf("expected series")
	}
	want := []any{1.0, 3.0, nil, 7.0}
	for i := range want {
		if series[i] != want[i] {
			t.Fatalf("RUNNING_TOTAL[%d]: expected %v, got %v", i, want[i], series[i])
		}
	}
}

func TestAggregateDenseRank(t *testing.T) {
	series, ok := AggregateSeries(domain.AggregationRank, []any{30.0, 10.0, 30.0, 20.0}, AggregateOptions{})
	if !ok {
		t.Fatalf("expected series")
	}
	want := []any{3, 1, 3, 2}
	for i := range want {
		if series[i] != want[i] {
			t.Fatalf("RANK[%d]: expected %v, got %v", i, want[i], series[i])
		}
	}
}

func TestAggregateMovingAvg(t *testing.T) {
	series, ok := AggregateSeries(domain.AggregationMovingAvg, []any{1.0, 2.0, 3.0, 4.0}, AggregateOptions{WindowSize: 2})
	if !ok {
		t.Fatalf("expected series")
	}
	want := []any{nil, 1.5, 2.5, 3.5}
	for i := range want {
		if series[i] != want[i] {
			t.Fatalf("MOVING_AVG[%d]: expected %v, got %v", i, want[i], series[i])
		}
	}

	if _, ok := AggregateSeries(domain.AggregationMovingAvg, []any{1.0}, AggregateOptions{}); ok {
		t.Fatalf("expected missing window size to report not computable")
	}
}

func TestAggregateWindowScalarIsFirstElement(t *testing.T) {
	got := scalar(t, domain.AggregationRunningTotal, []any{5.0, 6.0}, AggregateOptions{})
	if got != 5.0 {
		t.Fatalf("expected first series element, got %v", got)
	}
}

func TestAggregateTimeBasedKinds(t *testing.T) {
	axis := []time.Time{
		time.Date(2023, 11, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC),
	}
	has := []bool{true, true, true, true}
	values := []any{100.0, 50.0, 200.0, 100.0}
	opts := AggregateOptions{TimeAxis: axis, HasAxis: has}

	// Last calendar month in the data is 2024-02.
	if got := scalar(t, domain.AggregationMonthSum, values, opts); got != 100.0 {
		t.Fatalf("MONTH_SUM: expected 100, got %v", got)
	}
	// Last year is 2024 with 300 total.
	if got := scalar(t, domain.AggregationYearSum, values, opts); got != 300.0 {
		t.Fatalf("YEAR_SUM: expected 300, got %v", got)
	}
	// 2023 summed 150, 2024 summed 300: +100%.
	if got := scalar(t, domain.AggregationYoYGrowth, values, opts); got != 100.0 {
		t.Fatalf("YOY_GROWTH: expected 100, got %v", got)
	}

	if _, ok := AggregateScalar(domain.AggregationMonthSum, values, AggregateOptions{}); ok {
		t.Fatalf("expected missing date axis to report not computable")
	}
}
