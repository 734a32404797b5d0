// Package quality collects data-quality findings produced while a dataset is
// normalized and joined.
//
// A Tracker belongs to one load cycle. It is not safe for concurrent use and
// it never resets itself; callers reusing a Tracker call Clear between loads.
package quality

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/pkg/logger"
)

type Kind string

const (
	KindMissingData Kind = "missing_data"
	KindDuplicates  Kind = "duplicates"
	KindOneToMany   Kind = "one_to_many"
)

type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Severities lists severities from most to least urgent.
var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

const (
	missingReportThreshold = 5.0
	missingMediumThreshold = 10.0
	missingHighThreshold   = 25.0
	duplicateHighRows      = 10
	maxSamples             = 5
)

type Issue struct {
	Dataset    string   `json:"dataset"`
	Kind       Kind     `json:"kind"`
	Column     string   `json:"column"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage,omitempty"`
	Severity   Severity `json:"severity"`
	Samples    []string `json:"samples,omitempty"`
}

// ColumnStats is the null count of one column of a table.
type ColumnStats struct {
	Name    string
	Missing int
}

type Tracker struct {
	issues []Issue
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Add(issue Issue) {
	t.issues = append(t.issues, issue)
	logger.Debug("Data quality issue recorded",
		zap.String("dataset", issue.Dataset),
		zap.String("kind", string(issue.Kind)),
		zap.String("column", issue.Column),
		zap.String("severity", string(issue.Severity)),
	)
}

// CheckMissing records a missing_data issue for every column whose null
// fraction exceeds 5% of rows.
func (t *Tracker) CheckMissing(dataset string, rows int, columns []ColumnStats) {
	if rows == 0 {
		return
	}

	for _, col := range columns {
		if col.Missing == 0 {
			continue
		}

		pct := float64(col.Missing) / float64(rows) * 100
		if pct <= missingReportThreshold {
			continue
		}

		severity := SeverityLow
		switch {
		case pct > missingHighThreshold:
			severity = SeverityHigh
		case pct > missingMediumThreshold:
			severity = SeverityMedium
		}

		t.Add(Issue{
			Dataset:    dataset,
			Kind:       KindMissingData,
			Column:     col.Name,
			Count:      col.Missing,
			Percentage: round2(pct),
			Severity:   severity,
		})
	}
}

// CheckDuplicates records one duplicates issue when any non-nil key occurs
// more than once. Count is the number of rows that share a repeated key.
func (t *Tracker) CheckDuplicates(dataset, column string, keys []*string) {
	counts := make(map[string]int, len(keys))
	var order []string
	for _, k := range keys {
		if k == nil {
			continue
		}
		if counts[*k] == 0 {
			order = append(order, *k)
		}
		counts[*k]++
	}

	var dupRows int
	var samples []string
	for _, k := range order {
		if counts[k] < 2 {
			continue
		}
		dupRows += counts[k]
		if len(samples) < maxSamples {
			samples = append(samples, k)
		}
	}

	if dupRows == 0 {
		return
	}

	severity := SeverityMedium
	if dupRows > duplicateHighRows {
		severity = SeverityHigh
	}

	t.Add(Issue{
		Dataset:  dataset,
		Kind:     KindDuplicates,
		Column:   column,
		Count:    dupRows,
		Severity: severity,
		Samples:  samples,
	})
}

func (t *Tracker) Issues() []Issue {
	out := make([]Issue, len(t.issues))
	copy(out, t.issues)
	return out
}

func (t *Tracker) Clear() {
	t.issues = nil
}

func (t *Tracker) Report() Report {
	return NewReport(t.issues)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Describe renders an issue as one human-readable line.
func (i Issue) Describe() string {
	switch i.Kind {
	case KindMissingData:
		return fmt.Sprintf("%s → `%s`: %s%% missing (%d records)",
			i.Dataset, i.Column, decimal.NewFromFloat(i.Percentage).StringFixed(2), i.Count)
	case KindDuplicates:
		return fmt.Sprintf("%s → `%s`: %d rows share a duplicated key (e.g. %s)",
			i.Dataset, i.Column, i.Count, strings.Join(i.Samples, ", "))
	case KindOneToMany:
		return fmt.Sprintf("%s → `%s`: %d keys match more than one row; amounts summed, other fields take the first row (e.g. %s)",
			i.Dataset, i.Column, i.Count, strings.Join(i.Samples, ", "))
	default:
		return fmt.Sprintf("%s → `%s`: %s (%d)", i.Dataset, i.Column, i.Kind, i.Count)
	}
}
