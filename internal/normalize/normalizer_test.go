package normalize

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliquery/backend/internal/board"
	"github.com/intelliquery/backend/internal/quality"
)

func dealItem(id, code string, cols ...board.ColumnValue) board.Item {
	return board.Item{ID: id, Name: code, ColumnValues: cols}
}

func col(id, typ, text, value string) board.ColumnValue {
	return board.ColumnValue{ID: id, Type: typ, Text: text, Value: value}
}

func TestNormalizeDeals(t *testing.T) {
	items := []board.Item{
		dealItem("1", "D-100",
			col("person", "people", " OWN-1 ", ""),
			col("text", "text", "CL-9", ""),
			col("status", "status", "Open", `{"index":0}`),
			col("date", "date", "", `{"date":"2025-03-31"}`),
			col("dropdown", "dropdown", "high", ""),
			col("numbers", "numbers", "250000", ""),
			col("status5", "status", "Proposal", ""),
			col("text8", "text", "Mining", ""),
			col("date9", "date", "45658", ""),
		),
		dealItem("2", "D-200"),
	}

	tr := quality.NewTracker()
	deals := NewNormalizer(SchemaV1).NormalizeDeals(items, tr)
	require.Len(t, deals, 2)

	d := deals[0]
	assert.Equal(t, "D-100", *d.DealCode)
	assert.Equal(t, "OWN-1", *d.OwnerCode)
	assert.Equal(t, "CL-9", *d.ClientCode)
	assert.Equal(t, "Open", *d.DealStatus)
	assert.True(t, day(2025, 3, 31).Equal(*d.CloseDate))
	assert.Equal(t, ProbabilityHigh, d.ClosureProbability)
	assert.Equal(t, 250000.0, *d.DealValue)
	assert.Equal(t, "Proposal", *d.DealStage)
	assert.Equal(t, "Mining", *d.Sector)
	assert.True(t, day(2025, 1, 1).Equal(*d.CreatedDate))
	assert.Nil(t, d.TentativeCloseDate)

	empty := deals[1]
	assert.Nil(t, empty.DealValue)
	assert.Equal(t, ProbabilityUnknown, empty.ClosureProbability)

	var missingCols []string
	for _, issue := range tr.Issues() {
		assert.Equal(t, DatasetDeals, issue.Dataset)
		missingCols = append(missingCols, issue.Column)
	}
	assert.Contains(t, missingCols, "deal_value")
	assert.Contains(t, missingCols, "tentative_close_date")
	assert.NotContains(t, missingCols, "closure_probability")
	assert.NotContains(t, missingCols, "deal_code")
}

func TestNormalizeKeepsAngleBracketsInKeys(t *testing.T) {
	deals := []board.Item{
		dealItem("1", "D-101 <Phase 2>", col("person", "people", "OWNER <a>", "")),
		dealItem("2", "D-101 <Phase 3>", col("text7", "long_text", "<p>Fibre <i>survey</i></p>", "")),
	}

	tr := quality.NewTracker()
	rows := NewNormalizer(SchemaV1).NormalizeDeals(deals, tr)
	require.Len(t, rows, 2)

	assert.Equal(t, "D-101 <Phase 2>", *rows[0].DealCode)
	assert.Equal(t, "D-101 <Phase 3>", *rows[1].DealCode)
	assert.Equal(t, "OWNER <a>", *rows[0].OwnerCode)
	assert.Equal(t, "Fibre survey", *rows[1].ProductDeal)
	for _, issue := range tr.Issues() {
		assert.NotEqual(t, quality.KindDuplicates, issue.Kind)
	}

	orders := NewNormalizer(SchemaV1).NormalizeWorkOrders([]board.Item{
		{ID: "9", Name: "SN <7>", ColumnValues: []board.ColumnValue{col("text", "text", "D-101 <Phase 2>", "")}},
	}, quality.NewTracker())
	require.Len(t, orders, 1)
	assert.Equal(t, "SN <7>", *orders[0].SerialNumber)
	assert.Equal(t, "D-101 <Phase 2>", *orders[0].DealCode)
}

func TestNormalizeDealsKeepsEveryRecord(t *testing.T) {
	var items []board.Item
	for i := 0; i < 25; i++ {
		items = append(items, dealItem(fmt.Sprint(i), fmt.Sprintf("D-%d", i%20)))
	}

	tr := quality.NewTracker()
	deals := NewNormalizer(SchemaV1).NormalizeDeals(items, tr)
	assert.Len(t, deals, len(items))

	var dup *quality.Issue
	for _, issue := range tr.Issues() {
		if issue.Kind == quality.KindDuplicates {
			issue := issue
			dup = &issue
		}
	}
	require.NotNil(t, dup)
	assert.Equal(t, 10, dup.Count)
	assert.Equal(t, quality.SeverityMedium, dup.Severity)
	assert.Equal(t, []string{"D-0", "D-1", "D-2", "D-3", "D-4"}, dup.Samples)
}

func TestNormalizeWorkOrders(t *testing.T) {
	items := []board.Item{
		{ID: "10", Name: "SN-1", ColumnValues: []board.ColumnValue{
			col("text", "text", "D-100 ", ""),
			col("text0", "text", "CU-1", ""),
			col("status", "status", "Completed", ""),
			col("date4", "date", "2025-02-10", `{"date":"2025-02-10"}`),
			col("text6", "text", "Powerline", ""),
			col("numbers", "numbers", "1000", ""),
			col("numbers9", "numbers", "1180", ""),
			col("numbers0", "numbers", "900", ""),
			col("numbers4", "numbers", "0", ""),
		}},
	}

	tr := quality.NewTracker()
	orders := NewNormalizer(SchemaV1).NormalizeWorkOrders(items, tr)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "D-100", *o.DealCode)
	assert.Equal(t, "SN-1", *o.SerialNumber)
	assert.Equal(t, "Completed", *o.ExecutionStatus)
	assert.True(t, day(2025, 2, 10).Equal(*o.PODate))
	assert.Equal(t, 1180.0, *o.AmountInclGST)
	assert.Equal(t, 900.0, *o.BilledValueExclGST)
	assert.Equal(t, 0.0, *o.CollectedAmount)
	assert.Nil(t, o.DataDeliveryDate)

	for _, issue := range tr.Issues() {
		assert.Equal(t, DatasetWorkOrders, issue.Dataset)
	}
}
