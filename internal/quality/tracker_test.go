package quality

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestCheckMissingSeverityBands(t *testing.T) {
	tr := NewTracker()
	tr.CheckMissing("Deals", 100, []ColumnStats{
		{Name: "complete", Missing: 0},
		{Name: "at_threshold", Missing: 5},
		{Name: "low", Missing: 8},
		{Name: "medium", Missing: 20},
		{Name: "at_high_edge", Missing: 25},
		{Name: "high", Missing: 40},
	})

	issues := tr.Issues()
	require.Len(t, issues, 4)

	got := map[string]Severity{}
	for _, i := range issues {
		assert.Equal(t, KindMissingData, i.Kind)
		got[i.Column] = i.Severity
	}
	assert.Equal(t, map[string]Severity{
		"low":          SeverityLow,
		"medium":       SeverityMedium,
		"at_high_edge": SeverityMedium,
		"high":         SeverityHigh,
	}, got)
}

func TestCheckMissingRoundsPercentage(t *testing.T) {
	tr := NewTracker()
	tr.CheckMissing("Work Orders", 3, []ColumnStats{{Name: "po_date", Missing: 1}})

	issues := tr.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, 33.33, issues[0].Percentage)
	assert.Equal(t, 1, issues[0].Count)
	assert.Equal(t, SeverityHigh, issues[0].Severity)
}

func TestCheckMissingIgnoresEmptyTable(t *testing.T) {
	tr := NewTracker()
	tr.CheckMissing("Deals", 0, []ColumnStats{{Name: "deal_value", Missing: 0}})
	assert.Empty(t, tr.Issues())
}

func TestCheckDuplicates(t *testing.T) {
	tr := NewTracker()
	tr.CheckDuplicates("Deals", "deal_code", []*string{
		strp("D1"), strp("D2"), strp("D1"), nil, nil, strp("D3"), strp("D2"),
	})

	issues := tr.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, KindDuplicates, issues[0].Kind)
	assert.Equal(t, 4, issues[0].Count)
	assert.Equal(t, SeverityMedium, issues[0].Severity)
	assert.Equal(t, []string{"D1", "D2"}, issues[0].Samples)
}

func TestCheckDuplicatesHighSeverityAndSampleCap(t *testing.T) {
	var keys []*string
	for i := 0; i < 6; i++ {
		k := fmt.Sprintf("D%d", i)
		keys = append(keys, strp(k), strp(k))
	}

	tr := NewTracker()
	tr.CheckDuplicates("Deals", "deal_code", keys)

	issues := tr.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, 12, issues[0].Count)
	assert.Equal(t, SeverityHigh, issues[0].Severity)
	assert.Len(t, issues[0].Samples, 5)
}

func TestCheckDuplicatesNoneFound(t *testing.T) {
	tr := NewTracker()
	tr.CheckDuplicates("Deals", "deal_code", []*string{strp("A"), strp("B"), nil, nil})
	assert.Empty(t, tr.Issues())
}

func TestClearBetweenLoads(t *testing.T) {
	tr := NewTracker()
	tr.CheckMissing("Deals", 10, []ColumnStats{{Name: "deal_value", Missing: 5}})
	tr.CheckMissing("Work Orders", 10, []ColumnStats{{Name: "po_date", Missing: 5}})
	require.Len(t, tr.Issues(), 2)

	tr.Clear()
	tr.CheckMissing("Deals (reload)", 10, []ColumnStats{{Name: "sector", Missing: 3}})

	issues := tr.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, "Deals (reload)", issues[0].Dataset)
}

func TestReport(t *testing.T) {
	empty := NewTracker().Report()
	assert.True(t, empty.Empty())
	assert.Equal(t, NoIssuesMessage, empty.Markdown())

	raw, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+NoIssuesMessage+`"`, string(raw))

	tr := NewTracker()
	tr.CheckMissing("Deals", 10, []ColumnStats{{Name: "deal_value", Missing: 5}, {Name: "sector", Missing: 1}})
	r := tr.Report()

	assert.Equal(t, []string{"Deals → `deal_value`: 50.00% missing (5 records)"}, r.BySeverity[SeverityHigh])
	assert.Len(t, r.BySeverity[SeverityLow], 1)
	assert.Contains(t, r.Markdown(), "_High_")

	raw, err = json.Marshal(r)
	require.NoError(t, err)
	var decoded map[string][]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded["High"], 1)
}
