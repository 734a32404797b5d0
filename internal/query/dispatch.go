package query

import (
	"time"

	"github.com/intelliquery/backend/internal/analytics"
	"github.com/intelliquery/backend/internal/llm"
)

const dateLayout = "2006-01-02"

// Dispatch picks the analysis that answers intent and the filters to run it
// with. Intents without an analysis of their own get the pipeline view.
// A named time period fills in whichever date bound the filters left empty.
func Dispatch(intent llm.Intent, now time.Time) (string, analytics.Filters) {
	analysis := intent.Intent
	switch analysis {
	case llm.IntentPipeline, llm.IntentRevenue, llm.IntentRisk, llm.IntentSector:
	default:
		analysis = llm.IntentPipeline
	}

	filters := analytics.FiltersFromMap(intent.Filters)
	if start, end, ok := PeriodRange(intent.TimePeriod, now); ok {
		if filters.DateRangeStart == "" {
			filters.DateRangeStart = start.Format(dateLayout)
		}
		if filters.DateRangeEnd == "" {
			filters.DateRangeEnd = end.Format(dateLayout)
		}
	}
	return analysis, filters
}

// PeriodRange resolves a named period to inclusive first and last days.
// Periods such as "all" or "custom" have no range.
func PeriodRange(period string, now time.Time) (start, end time.Time, ok bool) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	switch period {
	case "today":
		return today, today, true
	case "this_week":
		offset := (int(today.Weekday()) + 6) % 7
		start = today.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 6), true
	case "this_month":
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1), true
	case "this_quarter":
		first := time.Month((int(m)-1)/3*3 + 1)
		start = time.Date(y, first, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, -1), true
	case "this_year":
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC), true
	case "last_6_months":
		return today.AddDate(0, -6, 0), today, true
	default:
		return time.Time{}, time.Time{}, false
	}
}
