package analytics

import (
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/intelliquery/backend/internal/normalize"
)

// Filters narrows a table before a metric runs. Empty fields are not
// applied. Sector, status and owner match as case-insensitive substrings,
// probability must match exactly, and the date range is inclusive on the
// table's primary date (close date for deals, PO date for work orders).
type Filters struct {
	Sector         string `json:"sector,omitempty"`
	Status         string `json:"status,omitempty"`
	Probability    string `json:"probability,omitempty"`
	Owner          string `json:"owner,omitempty"`
	DateRangeStart string `json:"date_range_start,omitempty"`
	DateRangeEnd   string `json:"date_range_end,omitempty"`
}

// FiltersFromMap reads a filter set from loosely typed input such as
// decoded JSON or URL query values. Unknown keys and null values are ignored.
func FiltersFromMap(m map[string]interface{}) Filters {
	get := func(key string) string {
		v, ok := m[key]
		if !ok || v == nil {
			return ""
		}
		return strings.TrimSpace(cast.ToString(v))
	}

	return Filters{
		Sector:         get("sector"),
		Status:         get("status"),
		Probability:    get("probability"),
		Owner:          get("owner"),
		DateRangeStart: get("date_range_start"),
		DateRangeEnd:   get("date_range_end"),
	}
}

func (f Filters) IsEmpty() bool {
	return f == (Filters{})
}

// Deals returns the deals matching every set filter, in input order.
func (f Filters) Deals(deals []normalize.Deal) []normalize.Deal {
	start, end := f.bounds()
	out := make([]normalize.Deal, 0, len(deals))
	for _, d := range deals {
		if f.matchDeal(d, start, end) {
			out = append(out, d)
		}
	}
	return out
}

// WorkOrders returns the orders matching the filters that apply to work
// orders. Probability and owner have no work order column and are skipped.
func (f Filters) WorkOrders(orders []normalize.WorkOrder) []normalize.WorkOrder {
	start, end := f.bounds()
	out := make([]normalize.WorkOrder, 0, len(orders))
	for _, o := range orders {
		if !contains(o.Sector, f.Sector) || !contains(o.ExecutionStatus, f.Status) {
			continue
		}
		if !withinRange(o.PODate, start, end) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (f Filters) matchDeal(d normalize.Deal, start, end *time.Time) bool {
	if !contains(d.Sector, f.Sector) || !contains(d.DealStatus, f.Status) || !contains(d.OwnerCode, f.Owner) {
		return false
	}
	if f.Probability != "" && strings.ToLower(d.ClosureProbability) != strings.ToLower(f.Probability) {
		return false
	}
	return withinRange(d.CloseDate, start, end)
}

// bounds parses the date range. A bound that does not parse is dropped.
func (f Filters) bounds() (start, end *time.Time) {
	parse := func(s string) *time.Time {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		t, err := cast.StringToDateInDefaultLocation(s, time.UTC)
		if err != nil {
			return nil
		}
		return &t
	}
	return parse(f.DateRangeStart), parse(f.DateRangeEnd)
}

func contains(field *string, want string) bool {
	if want == "" {
		return true
	}
	if field == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*field), strings.ToLower(want))
}

func withinRange(t *time.Time, start, end *time.Time) bool {
	if start == nil && end == nil {
		return true
	}
	if t == nil {
		return false
	}
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}
