// Package analytics computes the business metrics served to the dashboard
// and the chat: pipeline health, revenue, risk and sector performance.
//
// Every operation is a pure function of its input tables. An operation whose
// filtered input is empty returns NoData instead of failing.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/pkg/logger"
)

const NoDataMessage = "No data found matching filters"

// Result is a metrics payload ready for JSON encoding. Every result carries
// a "data_quality" block describing the rows it was computed from.
type Result map[string]interface{}

// NoData is the result returned when filtering leaves nothing to measure.
func NoData() Result {
	return Result{
		"error":        NoDataMessage,
		"data_quality": map[string]interface{}{"total_records": 0},
	}
}

// Err returns the error marker of r, if any.
func (r Result) Err() (string, bool) {
	msg, ok := r["error"].(string)
	return msg, ok
}

// warningThreshold is the missing share, in percent, above which a metric
// warns about one of its input fields.
const warningThreshold = 10.0

type fieldNulls struct {
	name  string
	nulls int
}

// qualitySnapshot summarizes nulls in the fields a metric depends on.
func qualitySnapshot(op string, total int, fields []fieldNulls) map[string]interface{} {
	nullCounts := make(map[string]int)
	warnings := make([]string, 0)
	for _, f := range fields {
		if f.nulls == 0 {
			continue
		}
		nullCounts[f.name] = f.nulls
		pct := float64(f.nulls) / float64(total) * 100
		if pct > warningThreshold {
			warnings = append(warnings, fmt.Sprintf("%s: %.1f%% missing (%d records)", f.name, pct, f.nulls))
		}
	}

	if len(warnings) > 0 {
		logger.Warn("Data quality issues in metric input",
			zap.String("metric", op),
			zap.Strings("warnings", warnings))
	}

	return map[string]interface{}{
		"total_records": total,
		"null_counts":   nullCounts,
		"warnings":      warnings,
	}
}

// sum adds the non-nil values and reports how many there were.
func sum(values []*float64) (float64, int) {
	total := decimal.Zero
	n := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		total = total.Add(decimal.NewFromFloat(*v))
		n++
	}
	f, _ := total.Float64()
	return f, n
}

func addTo(acc map[string]decimal.Decimal, key string, v *float64) {
	if v == nil {
		if _, ok := acc[key]; !ok {
			acc[key] = decimal.Zero
		}
		return
	}
	acc[key] = acc[key].Add(decimal.NewFromFloat(*v))
}

func floats(acc map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(acc))
	for k, v := range acc {
		out[k], _ = v.Float64()
	}
	return out
}

// monthYear labels a date with its month and year, e.g. "Jan 2024".
func monthYear(t time.Time) string {
	return t.Format("Jan 2006")
}

// percentile returns the q-th quantile of values using linear interpolation
// between the closest ranks. values must be non-empty.
func percentile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lower := math.Floor(pos)
	upper := math.Ceil(pos)
	if lower == upper {
		return sorted[int(pos)]
	}
	frac := pos - lower
	return sorted[int(lower)] + (sorted[int(upper)]-sorted[int(lower)])*frac
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
