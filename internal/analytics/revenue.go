package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/intelliquery/backend/internal/normalize"
)

type SectorRevenue struct {
	Sector string  `json:"sector"`
	Billed float64 `json:"billed"`
}

// AnalyzeRevenue measures billing and collection across the work orders
// matching filters.
func AnalyzeRevenue(orders []normalize.WorkOrder, filters Filters) Result {
	rows := filters.WorkOrders(orders)
	if len(rows) == 0 {
		return NoData()
	}

	billed := make([]*float64, len(rows))
	collected := make([]*float64, len(rows))
	bySector := make(map[string]decimal.Decimal)
	trend := make(map[string]decimal.Decimal)
	var nullPO int

	for i, o := range rows {
		billed[i] = o.BilledValueExclGST
		collected[i] = o.CollectedAmount
		if o.Sector != nil {
			addTo(bySector, *o.Sector, o.BilledValueExclGST)
		}
		if o.PODate == nil {
			nullPO++
		} else {
			addTo(trend, monthYear(*o.PODate), o.BilledValueExclGST)
		}
	}

	totalBilled, billedUsed := sum(billed)
	totalCollected, collectedUsed := sum(collected)
	receivable, _ := decimal.NewFromFloat(totalBilled).Sub(decimal.NewFromFloat(totalCollected)).Float64()

	quality := qualitySnapshot("revenue", len(rows), []fieldNulls{
		{name: "billed_value_excl_gst", nulls: len(rows) - billedUsed},
		{name: "collected_amount", nulls: len(rows) - collectedUsed},
		{name: "po_date", nulls: nullPO},
	})
	quality["billed_values_used"] = billedUsed
	quality["collected_values_used"] = collectedUsed

	return Result{
		"total_billed":      totalBilled,
		"total_collected":   totalCollected,
		"total_receivable":  receivable,
		"collection_rate":   CollectionRate(totalBilled, totalCollected),
		"revenue_by_sector": rankSectors(bySector),
		"monthly_trend":     floats(trend),
		"data_quality":      quality,
	}
}

// CollectionRate is collected as a percentage of billed, or 0 when nothing
// positive has been billed.
func CollectionRate(billed, collected float64) float64 {
	if billed <= 0 {
		return 0
	}
	return collected / billed * 100
}

// rankSectors orders sectors by billed amount, highest first.
func rankSectors(acc map[string]decimal.Decimal) []SectorRevenue {
	out := make([]SectorRevenue, 0, len(acc))
	for sector, amount := range floats(acc) {
		out = append(out, SectorRevenue{Sector: sector, Billed: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Billed != out[j].Billed {
			return out[i].Billed > out[j].Billed
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}
