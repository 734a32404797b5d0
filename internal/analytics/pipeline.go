package analytics

import (
	"sort"

	"github.com/intelliquery/backend/internal/normalize"
)

// probabilityWeights discounts pipeline value by likelihood of closing.
// Probabilities outside this table carry no weight.
var probabilityWeights = map[string]float64{
	normalize.ProbabilityHigh:    0.8,
	normalize.ProbabilityMedium:  0.5,
	normalize.ProbabilityLow:     0.2,
	normalize.ProbabilityUnknown: 0.1,
}

const topDealsLimit = 5

type TopDeal struct {
	DealCode           *string  `json:"deal_code"`
	ClientCode         *string  `json:"client_code"`
	DealValue          *float64 `json:"deal_value"`
	ClosureProbability string   `json:"closure_probability"`
}

// AnalyzePipeline measures the open sales pipeline of the deals matching
// filters.
func AnalyzePipeline(deals []normalize.Deal, filters Filters) Result {
	rows := filters.Deals(deals)
	if len(rows) == 0 {
		return NoData()
	}

	values := make([]*float64, len(rows))
	var nullProb, nullStage, nullClose int
	byStage := make(map[string]int)
	byProbability := make(map[string]int)
	trend := make(map[string]int)
	var weighted float64

	for i, d := range rows {
		values[i] = d.DealValue
		if d.ClosureProbability == "" {
			nullProb++
		} else {
			byProbability[d.ClosureProbability]++
		}
		if d.DealStage == nil {
			nullStage++
		} else {
			byStage[*d.DealStage]++
		}
		if d.CloseDate == nil {
			nullClose++
		} else {
			trend[monthYear(*d.CloseDate)]++
		}
		if w, ok := probabilityWeights[d.ClosureProbability]; ok && d.DealValue != nil {
			weighted += *d.DealValue * w
		}
	}

	total, valued := sum(values)
	var average interface{}
	if valued > 0 {
		average = total / float64(valued)
	}

	quality := qualitySnapshot("pipeline", len(rows), []fieldNulls{
		{name: "deal_value", nulls: len(rows) - valued},
		{name: "closure_probability", nulls: nullProb},
		{name: "deal_stage", nulls: nullStage},
		{name: "close_date", nulls: nullClose},
	})
	quality["values_used_in_calculations"] = valued

	return Result{
		"total_deals":             len(rows),
		"total_pipeline_value":    total,
		"average_deal_size":       average,
		"weighted_pipeline_value": weighted,
		"deals_by_stage":          byStage,
		"deals_by_probability":    byProbability,
		"monthly_trend":           trend,
		"top_deals":               topDeals(rows, topDealsLimit),
		"data_quality":            quality,
	}
}

// topDeals returns the n most valuable deals. Deals without a value are
// never ranked and ties keep input order.
func topDeals(rows []normalize.Deal, n int) []TopDeal {
	valued := make([]normalize.Deal, 0, len(rows))
	for _, d := range rows {
		if d.DealValue != nil {
			valued = append(valued, d)
		}
	}
	sort.SliceStable(valued, func(i, j int) bool {
		return *valued[i].DealValue > *valued[j].DealValue
	})
	if len(valued) > n {
		valued = valued[:n]
	}

	out := make([]TopDeal, len(valued))
	for i, d := range valued {
		out[i] = TopDeal{
			DealCode:           d.DealCode,
			ClientCode:         d.ClientCode,
			DealValue:          d.DealValue,
			ClosureProbability: d.ClosureProbability,
		}
	}
	return out
}
