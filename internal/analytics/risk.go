package analytics

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/intelliquery/backend/internal/normalize"
	"github.com/intelliquery/backend/internal/quality"
)

const (
	RiskStalledDeal = "Stalled Deal"
	RiskHighValue   = "High Value Risk"
	RiskCollection  = "Collection Risk"

	stalledAfterDays  = 90
	highValueQuantile = 0.75
)

type Risk struct {
	Type     string           `json:"type"`
	ID       string           `json:"id"`
	Severity quality.Severity `json:"severity"`
	Message  string           `json:"message"`
}

// AssessRisk flags stalled deals, valuable deals unlikely to close and
// billed work that has not been paid. Risks are listed heuristic by
// heuristic in that order, each in row order. now anchors deal age. The
// heuristics are independent, so unpaid work orders are still reported when
// no deal matches.
func AssessRisk(deals []normalize.Deal, orders []normalize.WorkOrder, filters Filters, now time.Time) Result {
	deals = filters.Deals(deals)
	orders = filters.WorkOrders(orders)
	if len(deals) == 0 && len(orders) == 0 {
		return NoData()
	}

	var risks []Risk
	risks = append(risks, stalledDeals(deals, now)...)
	risks = append(risks, highValueLowProbability(deals)...)
	risks = append(risks, unpaidWorkOrders(orders)...)

	summary := map[string]int{"high": 0, "medium": 0, "low": 0}
	for _, r := range risks {
		summary[strings.ToLower(string(r.Severity))]++
	}
	if risks == nil {
		risks = []Risk{}
	}

	return Result{
		"total_risks":  len(risks),
		"risk_list":    risks,
		"risk_summary": summary,
		"data_quality": map[string]interface{}{
			"total_records":       len(deals),
			"work_orders_checked": len(orders),
		},
	}
}

func stalledDeals(deals []normalize.Deal, now time.Time) []Risk {
	var out []Risk
	for _, d := range deals {
		if d.DealStatus == nil || strings.ToLower(*d.DealStatus) != "open" || d.CreatedDate == nil {
			continue
		}
		days := int(now.Sub(*d.CreatedDate).Hours() / 24)
		if days <= stalledAfterDays {
			continue
		}
		out = append(out, Risk{
			Type:     RiskStalledDeal,
			ID:       deref(d.DealCode, ""),
			Severity: quality.SeverityMedium,
			Message:  fmt.Sprintf("Deal open for %d days in stage '%s'", days, deref(d.DealStage, "Unknown")),
		})
	}
	return out
}

// highValueLowProbability flags Low probability deals worth strictly more
// than the 75th percentile of deal values.
func highValueLowProbability(deals []normalize.Deal) []Risk {
	var values []float64
	for _, d := range deals {
		if d.DealValue != nil {
			values = append(values, *d.DealValue)
		}
	}
	if len(values) == 0 {
		return nil
	}
	threshold := percentile(values, highValueQuantile)

	var out []Risk
	for _, d := range deals {
		if d.DealValue == nil || *d.DealValue <= threshold || d.ClosureProbability != normalize.ProbabilityLow {
			continue
		}
		out = append(out, Risk{
			Type:     RiskHighValue,
			ID:       deref(d.DealCode, ""),
			Severity: quality.SeverityHigh,
			Message:  fmt.Sprintf("High value deal (%s) with Low probability", money(*d.DealValue)),
		})
	}
	return out
}

func unpaidWorkOrders(orders []normalize.WorkOrder) []Risk {
	var out []Risk
	for _, o := range orders {
		if o.BilledValueExclGST == nil || *o.BilledValueExclGST <= 0 {
			continue
		}
		if o.CollectedAmount == nil || *o.CollectedAmount != 0 {
			continue
		}
		out = append(out, Risk{
			Type:     RiskCollection,
			ID:       deref(o.DealCode, ""),
			Severity: quality.SeverityHigh,
			Message:  fmt.Sprintf("Billed %s but 0 collected", money(*o.BilledValueExclGST)),
		})
	}
	return out
}

// money renders an amount rounded to whole units with thousands separators.
func money(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}
