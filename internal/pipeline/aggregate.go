package pipeline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/formula"
)

// AggregateOptions carries the auxiliary inputs some aggregation kinds need.
// Rows is the full row context (parallel to the value slice) for conditional
// masks; TimeAxis pairs each value with the date it belongs to for time-based
// resampling.
type AggregateOptions struct {
	Condition  string
	WindowSize int
	TimeUnit   domain.TimeUnit
	Rows       []map[string]any
	TimeAxis   []time.Time
	HasAxis    []bool
}

// AggregateScalar computes a single aggregated value over the column values.
// The second result is false when the kind cannot be computed in this context
// (unknown kind, missing auxiliary parameter, missing date axis); callers
// fall back to the raw column values per the degrade-don't-crash contract.
// Window kinds reduce to the first element of their series in scalar
// contexts.
func AggregateScalar(kind domain.AggregationKind, values []any, opts AggregateOptions) (any, bool) {
	switch kind {
	case domain.AggregationCount:
		return countNonNil(values), true
	case domain.AggregationSum:
		return sum(numericValues(values)), true
	case domain.AggregationAvg:
		nums := numericValues(values)
		if len(nums) == 0 {
			return nil, true
		}
		return sum(nums) / float64(len(nums)), true
	case domain.AggregationMin:
		return extremum(values, true), true
	case domain.AggregationMax:
		return extremum(values, false), true

	case domain.AggregationCountDistinct:
		seen := make(map[string]struct{})
		for _, v := range values {
			if v == nil {
				continue
			}
			seen[fmt.Sprintf("%v", v)] = struct{}{}
		}
		return len(seen), true

	case domain.AggregationCountIf, domain.AggregationSumIf:
		if opts.Condition == "" || len(opts.Rows) != len(values) {
			return nil, false
		}
		count := 0
		total := 0.0
		for i, row := range opts.Rows {
			if !formula.EvalBool(formula.Substitute(opts.Condition, row), row) {
				continue
			}
			if values[i] == nil {
				continue
			}
			count++
			if n, ok := domain.ToFloat(values[i]); ok {
				total += n
			}
		}
		if kind == domain.AggregationCountIf {
			return count, true
		}
		return total, true

	case domain.AggregationStdDev:
		v, ok := populationVariance(numericValues(values))
		if !ok {
			return nil, true
		}
		return math.Sqrt(v), true
	case domain.AggregationVariance:
		v, ok := populationVariance(numericValues(values))
		if !ok {
			return nil, true
		}
		return v, true
	case domain.AggregationMedian:
		return quantile(numericValues(values), 0.5), true

	case domain.AggregationMonthSum, domain.AggregationYearSum:
		buckets, ok := resample(kind, values, opts)
		if !ok {
			return nil, false
		}
		if len(buckets) == 0 {
			return nil, true
		}
		return buckets[len(buckets)-1].Sum, true
	case domain.AggregationYoYGrowth:
		growth, ok := yoyGrowth(values, opts)
		if !ok {
			return nil, false
		}
		return growth, true

	case domain.AggregationRunningTotal, domain.AggregationRank, domain.AggregationMovingAvg:
		series, ok := AggregateSeries(kind, values, opts)
		if !ok {
			return nil, false
		}
		if len(series) == 0 {
			return nil, true
		}
		return series[0], true
	}

	if q, ok := kind.Percentile(); ok {
		return quantile(numericValues(values), q), true
	}
	return nil, false
}

// AggregateSeries computes a per-row series for the window-function kinds.
func AggregateSeries(kind domain.AggregationKind, values []any, opts AggregateOptions) ([]any, bool) {
	switch kind {
	case domain.AggregationRunningTotal:
		out := make([]any, len(values))
		total := 0.0
		for i, v := range values {
			n, ok := domain.ToFloat(v)
			if !ok {
				out[i] = nil
				continue
			}
			total += n
			out[i] = total
		}
		return out, true

	case domain.AggregationRank:
		return denseRank(values), true

	case domain.AggregationMovingAvg:
		if opts.WindowSize <= 0 {
			return nil, false
		}
		w := opts.WindowSize
		out := make([]any, len(values))
		for i := range values {
			if i+1 < w {
				out[i] = nil
				continue
			}
			windowSum := 0.0
			complete := true
			for j := i + 1 - w; j <= i; j++ {
				n, ok := domain.ToFloat(values[j])
				if !ok {
					complete = false
					break
				}
				windowSum += n
			}
			if !complete {
				out[i] = nil
				continue
			}
			out[i] = windowSum / float64(w)
		}
		return out, true
	}
	return nil, false
}

// Bucket is one resampled period with the sum of values falling into it.
type Bucket struct {
	Period string
	Sum    float64
}

// resample groups values by the period of their paired date, ordered by
// period, summing within each period.
func resample(kind domain.AggregationKind, values []any, opts AggregateOptions) ([]Bucket, bool) {
	if len(opts.TimeAxis) != len(values) {
		return nil, false
	}
	unit := opts.TimeUnit
	if unit == "" {
		if kind == domain.AggregationYearSum {
			unit = domain.TimeUnitYear
		} else {
			unit = domain.TimeUnitMonth
		}
	}
	sums := make(map[string]float64)
	var periods []string
	for i, v := range values {
		if len(opts.HasAxis) == len(values) && !opts.HasAxis[i] {
			continue
		}
		n, ok := domain.ToFloat(v)
		if !ok {
			continue
		}
		period := bucketKey(opts.TimeAxis[i], unit)
		if _, seen := sums[period]; !seen {
			periods = append(periods, period)
		}
		sums[period] += n
	}
	if len(periods) == 0 {
		return nil, true
	}
	sort.Strings(periods)
	buckets := make([]Bucket, 0, len(periods))
	for _, p := range periods {
		buckets = append(buckets, Bucket{Period: p, Sum: sums[p]})
	}
	return buckets, true
}

func yoyGrowth(values []any, opts AggregateOptions) (any, bool) {
	yearly, ok := resample(domain.AggregationYearSum, values, AggregateOptions{
		TimeUnit: domain.TimeUnitYear,
		TimeAxis: opts.TimeAxis,
		HasAxis:  opts.HasAxis,
	})
	if !ok {
		return nil, false
	}
	if len(yearly) < 2 {
		return nil, true
	}
	prev := yearly[len(yearly)-2].Sum
	last := yearly[len(yearly)-1].Sum
	if prev == 0 {
		return nil, true
	}
	return (last - prev) / prev * 100, true
}

func bucketKey(t time.Time, unit domain.TimeUnit) string {
	switch unit {
	case domain.TimeUnitDay:
		return t.Format("2006-01-02")
	case domain.TimeUnitWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case domain.TimeUnitQuarter:
		return fmt.Sprintf("%04d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case domain.TimeUnitYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01")
	}
}

func countNonNil(values []any) int {
	count := 0
	for _, v := range values {
		if v != nil {
			count++
		}
	}
	return count
}

func numericValues(values []any) []float64 {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		if n, ok := domain.ToFloat(v); ok {
			nums = append(nums, n)
		}
	}
	return nums
}

func sum(nums []float64) float64 {
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total
}

// extremum returns the min or max. Numeric values win when present;
// otherwise strings order lexicographically.
func extremum(values []any, min bool) any {
	nums := numericValues(values)
	if len(nums) > 0 {
		best := nums[0]
		for _, n := range nums[1:] {
			if (min && n < best) || (!min && n > best) {
				best = n
			}
		}
		return best
	}
	var best string
	found := false
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if !found || (min && s < best) || (!min && s > best) {
			best = s
			found = true
		}
	}
	if !found {
		return nil
	}
	return best
}

func populationVariance(nums []float64) (float64, bool) {
	if len(nums) == 0 {
		return 0, false
	}
	mean := sum(nums) / float64(len(nums))
	ss := 0.0
	for _, n := range nums {
		d := n - mean
		ss += d * d
	}
	return ss / float64(len(nums)), true
}

// quantile uses linear interpolation between closest ranks.
func quantile(nums []float64, q float64) any {
	if len(nums) == 0 {
		return nil
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac
}

// denseRank ranks numeric values ascending with no gaps between ranks.
// Non-numeric values rank as nil.
func denseRank(values []any) []any {
	distinct := make(map[float64]struct{})
	for _, v := range values {
		if n, ok := domain.ToFloat(v); ok && v != nil {
			distinct[n] = struct{}{}
		}
	}
	sorted := make([]float64, 0, len(distinct))
	for n := range distinct {
		sorted = append(sorted, n)
	}
	sort.Float64s(sorted)
	rank := make(map[float64]int, len(sorted))
	for i, n := range sorted {
		rank[n] = i + 1
	}
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = nil
			continue
		}
		if n, ok := domain.ToFloat(v); ok {
			out[i] = rank[n]
			continue
		}
		out[i] = nil
	}
	return out
}
