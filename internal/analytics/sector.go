package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/intelliquery/backend/internal/join"
)

type SectorPerformance struct {
	Sector           string  `json:"sector"`
	PipelineValue    float64 `json:"pipeline_value"`
	DealCount        int     `json:"deal_count"`
	BilledRevenue    float64 `json:"billed_revenue"`
	CollectedRevenue float64 `json:"collected_revenue"`
	AvgDealSize      float64 `json:"avg_deal_size"`
}

type sectorTotals struct {
	pipeline, billed, collected decimal.Decimal
	deals                       int
}

// AnalyzeSectors groups joined rows by the deal board's sector. Rows without
// a deal sector are left out of every group.
func AnalyzeSectors(rows []join.Combined, filters Filters) Result {
	start, end := filters.bounds()
	matched := make([]join.Combined, 0, len(rows))
	for _, r := range rows {
		if filters.matchDeal(r.Deal, start, end) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return NoData()
	}

	totals := make(map[string]*sectorTotals)
	var unassigned int
	for _, r := range matched {
		if r.DealSector == nil {
			unassigned++
			continue
		}
		t, ok := totals[*r.DealSector]
		if !ok {
			t = &sectorTotals{}
			totals[*r.DealSector] = t
		}
		t.deals++
		if r.DealValue != nil {
			t.pipeline = t.pipeline.Add(decimal.NewFromFloat(*r.DealValue))
		}
		if r.Order != nil {
			if r.Order.BilledValueExclGST != nil {
				t.billed = t.billed.Add(decimal.NewFromFloat(*r.Order.BilledValueExclGST))
			}
			if r.Order.CollectedAmount != nil {
				t.collected = t.collected.Add(decimal.NewFromFloat(*r.Order.CollectedAmount))
			}
		}
	}

	sectors := make([]SectorPerformance, 0, len(totals))
	for name, t := range totals {
		pipeline, _ := t.pipeline.Float64()
		billed, _ := t.billed.Float64()
		collected, _ := t.collected.Float64()
		avg, _ := t.pipeline.Div(decimal.NewFromInt(int64(t.deals))).Float64()
		sectors = append(sectors, SectorPerformance{
			Sector:           name,
			PipelineValue:    pipeline,
			DealCount:        t.deals,
			BilledRevenue:    billed,
			CollectedRevenue: collected,
			AvgDealSize:      avg,
		})
	}
	sort.Slice(sectors, func(i, j int) bool { return sectors[i].Sector < sectors[j].Sector })

	quality := qualitySnapshot("sectors", len(matched), []fieldNulls{
		{name: "sector", nulls: unassigned},
	})

	return Result{
		"sectors":      sectors,
		"data_quality": quality,
	}
}
