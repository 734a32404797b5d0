package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliquery/backend/internal/join"
	"github.com/intelliquery/backend/internal/normalize"
	"github.com/intelliquery/backend/internal/quality"
)

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func sampleDeals() []normalize.Deal {
	return []normalize.Deal{
		{DealCode: str("D1"), ClientCode: str("C1"), OwnerCode: str("OWNER_A"), DealStatus: str("Open"), Sector: str("Mining"),
			DealStage: str("Proposal"), ClosureProbability: "High", DealValue: num(100), CloseDate: date(2025, 1, 15)},
		{DealCode: str("D2"), ClientCode: str("C2"), OwnerCode: str("OWNER_B"), DealStatus: str("Open"), Sector: str("Powerline"),
			DealStage: str("Proposal"), ClosureProbability: "Low", DealValue: num(400), CloseDate: date(2025, 2, 1)},
		{DealCode: str("D3"), ClientCode: str("C3"), OwnerCode: str("OWNER_A"), DealStatus: str("Closed Won"), Sector: str("Mining"),
			DealStage: str("Won"), ClosureProbability: "Medium", DealValue: num(200), CloseDate: date(2025, 1, 20)},
		{DealCode: str("D4"), ClientCode: str("C4"), DealStatus: str("Open"), Sector: str("Railways"),
			ClosureProbability: "Unknown"},
	}
}

func TestAnalyzePipeline(t *testing.T) {
	res := AnalyzePipeline(sampleDeals(), Filters{})
	_, failed := res.Err()
	require.False(t, failed)

	assert.Equal(t, 4, res["total_deals"])
	assert.Equal(t, 700.0, res["total_pipeline_value"])
	assert.InDelta(t, 233.333, res["average_deal_size"].(float64), 0.001)
	assert.InDelta(t, 100*0.8+400*0.2+200*0.5, res["weighted_pipeline_value"].(float64), 1e-9)
	assert.Equal(t, map[string]int{"Proposal": 2, "Won": 1}, res["deals_by_stage"])
	assert.Equal(t, map[string]int{"High": 1, "Low": 1, "Medium": 1, "Unknown": 1}, res["deals_by_probability"])
	assert.Equal(t, map[string]int{"Jan 2025": 2, "Feb 2025": 1}, res["monthly_trend"])

	top := res["top_deals"].([]TopDeal)
	require.Len(t, top, 3)
	assert.Equal(t, "D2", *top[0].DealCode)
	assert.Equal(t, "D3", *top[1].DealCode)
	assert.Equal(t, "D1", *top[2].DealCode)

	dq := res["data_quality"].(map[string]interface{})
	assert.Equal(t, 4, dq["total_records"])
	assert.Equal(t, 3, dq["values_used_in_calculations"])
	assert.Equal(t, map[string]int{"deal_value": 1, "deal_stage": 1, "close_date": 1}, dq["null_counts"])
	assert.Contains(t, dq["warnings"], "deal_value: 25.0% missing (1 records)")
}

func TestAnalyzePipelineUnrecognizedProbabilityCarriesNoWeight(t *testing.T) {
	deals := []normalize.Deal{
		{DealCode: str("D1"), ClosureProbability: "VeryHigh", DealValue: num(1000)},
		{DealCode: str("D2"), ClosureProbability: "High", DealValue: num(10)},
	}

	res := AnalyzePipeline(deals, Filters{})
	assert.InDelta(t, 8.0, res["weighted_pipeline_value"].(float64), 1e-9)
	assert.Equal(t, 1010.0, res["total_pipeline_value"])
}

func TestAnalyzePipelineNoMatches(t *testing.T) {
	for name, deals := range map[string][]normalize.Deal{
		"filtered out": sampleDeals(),
		"empty input":  nil,
	} {
		t.Run(name, func(t *testing.T) {
			res := AnalyzePipeline(deals, Filters{Sector: "Aviation"})
			msg, failed := res.Err()
			assert.True(t, failed)
			assert.Equal(t, NoDataMessage, msg)
			assert.Equal(t, 0, res["data_quality"].(map[string]interface{})["total_records"])
		})
	}
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{name: "none", filters: Filters{}, want: []string{"D1", "D2", "D3", "D4"}},
		{name: "sector substring any case", filters: Filters{Sector: "min"}, want: []string{"D1", "D3"}},
		{name: "status substring", filters: Filters{Status: "WON"}, want: []string{"D3"}},
		{name: "owner", filters: Filters{Owner: "owner_a"}, want: []string{"D1", "D3"}},
		{name: "probability exact", filters: Filters{Probability: "low"}, want: []string{"D2"}},
		{name: "probability is not substring", filters: Filters{Probability: "Lo"}, want: []string{}},
		{name: "inclusive range", filters: Filters{DateRangeStart: "2025-01-15", DateRangeEnd: "2025-01-20"}, want: []string{"D1", "D3"}},
		{name: "start only", filters: Filters{DateRangeStart: "2025-01-16"}, want: []string{"D2", "D3"}},
		{name: "unparsable bound ignored", filters: Filters{DateRangeStart: "someday", DateRangeEnd: "2025-01-31"}, want: []string{"D1", "D3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, d := range tt.filters.Deals(sampleDeals()) {
				got = append(got, *d.DealCode)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("filtered deals mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFiltersFromMap(t *testing.T) {
	f := FiltersFromMap(map[string]interface{}{
		"sector":           " Mining ",
		"probability":      nil,
		"date_range_start": "2025-01-01",
		"unknown":          "x",
	})
	assert.Equal(t, Filters{Sector: "Mining", DateRangeStart: "2025-01-01"}, f)
	assert.False(t, f.IsEmpty())
	assert.True(t, FiltersFromMap(nil).IsEmpty())
}

func TestAnalyzeRevenue(t *testing.T) {
	orders := []normalize.WorkOrder{
		{DealCode: str("D1"), Sector: str("Mining"), BilledValueExclGST: num(100), CollectedAmount: num(60), PODate: date(2025, 1, 3)},
		{DealCode: str("D2"), Sector: str("Powerline"), BilledValueExclGST: num(300), CollectedAmount: num(0), PODate: date(2025, 1, 9)},
		{DealCode: str("D3"), Sector: str("Mining"), BilledValueExclGST: num(50.5), PODate: date(2025, 2, 2)},
		{DealCode: str("D4"), CollectedAmount: num(10)},
	}

	res := AnalyzeRevenue(orders, Filters{})
	assert.Equal(t, 450.5, res["total_billed"])
	assert.Equal(t, 70.0, res["total_collected"])
	assert.Equal(t, 380.5, res["total_receivable"])
	assert.InDelta(t, 70.0/450.5*100, res["collection_rate"].(float64), 1e-9)
	assert.Equal(t, []SectorRevenue{{Sector: "Powerline", Billed: 300}, {Sector: "Mining", Billed: 150.5}}, res["revenue_by_sector"])
	assert.Equal(t, map[string]float64{"Jan 2025": 400, "Feb 2025": 50.5}, res["monthly_trend"])

	dq := res["data_quality"].(map[string]interface{})
	assert.Equal(t, 3, dq["billed_values_used"])
	assert.Equal(t, 3, dq["collected_values_used"])
}

func TestCollectionRateWithoutBilling(t *testing.T) {
	assert.Equal(t, 0.0, CollectionRate(0, 100))
	assert.Equal(t, 0.0, CollectionRate(-5, 100))

	res := AnalyzeRevenue([]normalize.WorkOrder{{CollectedAmount: num(10)}}, Filters{})
	assert.Equal(t, 0.0, res["collection_rate"])
}

func TestAnalyzeRevenueFiltersOnPODate(t *testing.T) {
	orders := []normalize.WorkOrder{
		{Sector: str("Mining"), BilledValueExclGST: num(1), PODate: date(2024, 12, 31)},
		{Sector: str("Mining"), BilledValueExclGST: num(2), PODate: date(2025, 1, 1)},
		{Sector: str("Mining"), BilledValueExclGST: num(4)},
	}

	res := AnalyzeRevenue(orders, Filters{DateRangeStart: "2025-01-01", Probability: "High", Owner: "nobody"})
	assert.Equal(t, 2.0, res["total_billed"])
}

func TestAssessRisk(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	deals := []normalize.Deal{
		{DealCode: str("OLD"), DealStatus: str("Open"), DealStage: str("Proposal"), CreatedDate: date(2025, 1, 1), ClosureProbability: "High", DealValue: num(10)},
		{DealCode: str("NEW"), DealStatus: str("open"), CreatedDate: date(2025, 5, 1), ClosureProbability: "High", DealValue: num(20)},
		{DealCode: str("BIG"), DealStatus: str("Closed"), CreatedDate: date(2024, 1, 1), ClosureProbability: "Low", DealValue: num(1250000)},
		{DealCode: str("MID"), DealStatus: str("Closed"), ClosureProbability: "Low", DealValue: num(30)},
		{DealCode: str("NOVAL"), DealStatus: str("Open"), ClosureProbability: "Low"},
	}
	orders := []normalize.WorkOrder{
		{DealCode: str("OLD"), BilledValueExclGST: num(5000), CollectedAmount: num(0)},
		{DealCode: str("NEW"), BilledValueExclGST: num(5000), CollectedAmount: num(1)},
		{DealCode: str("MID"), BilledValueExclGST: num(5000)},
		{DealCode: str("ZERO"), BilledValueExclGST: num(0), CollectedAmount: num(0)},
	}

	res := AssessRisk(deals, orders, Filters{}, now)

	want := []Risk{
		{Type: RiskStalledDeal, ID: "OLD", Severity: quality.SeverityMedium, Message: "Deal open for 151 days in stage 'Proposal'"},
		{Type: RiskHighValue, ID: "BIG", Severity: quality.SeverityHigh, Message: "High value deal (1,250,000) with Low probability"},
		{Type: RiskCollection, ID: "OLD", Severity: quality.SeverityHigh, Message: "Billed 5,000 but 0 collected"},
	}
	if diff := cmp.Diff(want, res["risk_list"]); diff != "" {
		t.Errorf("risk list mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, res["total_risks"])
	assert.Equal(t, map[string]int{"high": 2, "medium": 1, "low": 0}, res["risk_summary"])
}

func TestAssessRiskHighValueIsStrict(t *testing.T) {
	// Values 10, 20, 30, 40, 50: the 75th percentile is exactly 40.
	deals := []normalize.Deal{
		{DealCode: str("A"), ClosureProbability: "High", DealValue: num(10)},
		{DealCode: str("B"), ClosureProbability: "High", DealValue: num(20)},
		{DealCode: str("C"), ClosureProbability: "High", DealValue: num(30)},
		{DealCode: str("AT"), ClosureProbability: "Low", DealValue: num(40)},
		{DealCode: str("ABOVE"), ClosureProbability: "Low", DealValue: num(50)},
	}

	res := AssessRisk(deals, nil, Filters{}, time.Now())
	risks := res["risk_list"].([]Risk)
	require.Len(t, risks, 1)
	assert.Equal(t, "ABOVE", risks[0].ID)
	assert.Equal(t, RiskHighValue, risks[0].Type)
	assert.Equal(t, quality.SeverityHigh, risks[0].Severity)
}

func TestAssessRiskNoData(t *testing.T) {
	res := AssessRisk(sampleDeals(), nil, Filters{Sector: "Aviation"}, time.Now())
	_, failed := res.Err()
	assert.True(t, failed)
}

func TestAssessRiskOrdersWithoutDeals(t *testing.T) {
	orders := []normalize.WorkOrder{
		{DealCode: str("D9"), Sector: str("Aviation"), BilledValueExclGST: num(5000), CollectedAmount: num(0)},
	}

	for name, deals := range map[string][]normalize.Deal{
		"no deals":           nil,
		"deals filtered out": sampleDeals(),
	} {
		t.Run(name, func(t *testing.T) {
			res := AssessRisk(deals, orders, Filters{Sector: "aviation"}, time.Now())
			_, failed := res.Err()
			require.False(t, failed)

			want := []Risk{
				{Type: RiskCollection, ID: "D9", Severity: quality.SeverityHigh, Message: "Billed 5,000 but 0 collected"},
			}
			if diff := cmp.Diff(want, res["risk_list"]); diff != "" {
				t.Errorf("risk list mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, 1, res["total_risks"])
			assert.Equal(t, map[string]interface{}{"total_records": 0, "work_orders_checked": 1}, res["data_quality"])
		})
	}
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 40.0, percentile([]float64{50, 10, 40, 20, 30}, 0.75))
	assert.Equal(t, 3.25, percentile([]float64{1, 2, 3, 4}, 0.75))
	assert.Equal(t, 7.0, percentile([]float64{7}, 0.75))
}

func TestAnalyzeSectors(t *testing.T) {
	orders := []normalize.WorkOrder{
		{DealCode: str("D1"), Sector: str("Powerline"), BilledValueExclGST: num(80), CollectedAmount: num(20)},
		{DealCode: str("D3"), Sector: str("Mining"), BilledValueExclGST: num(40)},
	}
	deals := append(sampleDeals(), normalize.Deal{DealCode: str("D5"), ClosureProbability: "Unknown", DealValue: num(9)})
	rows := join.DealsAndOrders(deals, orders, quality.NewTracker())

	res := AnalyzeSectors(rows, Filters{})
	want := []SectorPerformance{
		{Sector: "Mining", PipelineValue: 300, DealCount: 2, BilledRevenue: 120, CollectedRevenue: 20, AvgDealSize: 150},
		{Sector: "Powerline", PipelineValue: 400, DealCount: 1, AvgDealSize: 400},
		{Sector: "Railways", PipelineValue: 0, DealCount: 1, AvgDealSize: 0},
	}
	if diff := cmp.Diff(want, res["sectors"]); diff != "" {
		t.Errorf("sector performance mismatch (-want +got):\n%s", diff)
	}

	dq := res["data_quality"].(map[string]interface{})
	assert.Equal(t, 5, dq["total_records"])
	assert.Equal(t, map[string]int{"sector": 1}, dq["null_counts"])
}

func TestAnalyzeSectorsEmpty(t *testing.T) {
	res := AnalyzeSectors(nil, Filters{})
	_, failed := res.Err()
	assert.True(t, failed)
}

func TestResultEncodesAsJSON(t *testing.T) {
	res := AnalyzePipeline([]normalize.Deal{{DealCode: str("D1"), ClosureProbability: "Unknown"}}, Filters{})
	body, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"average_deal_size":null`)
	assert.Contains(t, string(body), `"top_deals":[]`)
}
