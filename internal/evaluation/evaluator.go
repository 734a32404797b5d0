package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/llm"
	"github.com/intelliquery/backend/pkg/logger"
)

type IntentParser interface {
	ParseQuery(ctx context.Context, question string) (llm.Intent, error)
}

// Evaluator measures how well questions are routed to analyses, for both
// the model and the keyword fallback.
type Evaluator struct {
	parser IntentParser
}

type EvaluationDataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Query           string            `json:"query"`
	ExpectedIntent  string            `json:"expected_intent"`
	ExpectedFilters map[string]string `json:"expected_filters"`
}

type ItemResult struct {
	Query           string
	ExpectedIntent  string
	ModelIntent     string
	FallbackIntent  string
	ModelCorrect    bool
	FallbackCorrect bool
	FiltersMatched  bool
	Err             string
}

type IntentStats struct {
	Total           int
	ModelCorrect    int
	FallbackCorrect int
}

type EvaluationReport struct {
	TotalQueries       int
	ModelCorrect       int
	FallbackCorrect    int
	FiltersMatched     int
	ParseErrors        int
	ModelAccuracy      float64
	FallbackAccuracy   float64
	FilterAccuracy     float64
	ByIntent           map[string]*IntentStats
	Misclassifications []ItemResult
}

func NewEvaluator(parser IntentParser) *Evaluator {
	return &Evaluator{
		parser: parser,
	}
}

func (e *Evaluator) EvaluateQuery(ctx context.Context, item DatasetItem) ItemResult {
	result := ItemResult{
		Query:          item.Query,
		ExpectedIntent: item.ExpectedIntent,
	}

	intent, err := e.parser.ParseQuery(ctx, item.Query)
	if err != nil {
		result.Err = err.Error()
	} else {
		result.ModelIntent = intent.Intent
		result.ModelCorrect = intent.Intent == item.ExpectedIntent
		result.FiltersMatched = filtersMatch(item.ExpectedFilters, intent.Filters)
	}

	if guess, ok := llm.GuessIntent(item.Query); ok {
		result.FallbackIntent = guess.Intent
		result.FallbackCorrect = guess.Intent == item.ExpectedIntent
	}

	return result
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *EvaluationDataset) (*EvaluationReport, error) {
	if dataset == nil || len(dataset.Items) == 0 {
		return nil, fmt.Errorf("evaluation dataset is empty")
	}

	logger.Info("Running intent evaluation", zap.Int("items", len(dataset.Items)))

	report := &EvaluationReport{
		TotalQueries: len(dataset.Items),
		ByIntent:     make(map[string]*IntentStats),
	}

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Debug("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))
		result := e.EvaluateQuery(ctx, item)

		stats, ok := report.ByIntent[item.ExpectedIntent]
		if !ok {
			stats = &IntentStats{}
			report.ByIntent[item.ExpectedIntent] = stats
		}
		stats.Total++

		if result.Err != "" {
			report.ParseErrors++
		}
		if result.ModelCorrect {
			report.ModelCorrect++
			stats.ModelCorrect++
		} else {
			report.Misclassifications = append(report.Misclassifications, result)
		}
		if result.FallbackCorrect {
			report.FallbackCorrect++
			stats.FallbackCorrect++
		}
		if result.FiltersMatched {
			report.FiltersMatched++
		}
	}

	total := float64(report.TotalQueries)
	report.ModelAccuracy = float64(report.ModelCorrect) / total * 100
	report.FallbackAccuracy = float64(report.FallbackCorrect) / total * 100
	report.FilterAccuracy = float64(report.FiltersMatched) / total * 100

	logger.Info("Intent evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Float64("model_accuracy", report.ModelAccuracy),
		zap.Float64("fallback_accuracy", report.FallbackAccuracy),
		zap.Int("parse_errors", report.ParseErrors),
	)

	return report, nil
}

// filtersMatch reports whether every expected filter was extracted, compared
// case-insensitively. Extra filters are tolerated.
func filtersMatch(expected map[string]string, got map[string]interface{}) bool {
	for key, want := range expected {
		v, ok := got[key].(string)
		if !ok || !strings.EqualFold(strings.TrimSpace(v), want) {
			return false
		}
	}
	return true
}

func LoadDatasetFromJSON(data []byte) (*EvaluationDataset, error) {
	var dataset EvaluationDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

func GenerateReport(report *EvaluationReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, `
Intent Evaluation Report
========================

Total Queries: %d
Parse Errors: %d

Accuracy:
- Model: %d (%.1f%%)
- Keyword fallback: %d (%.1f%%)
- Filters extracted: %d (%.1f%%)

By Intent:
`,
		report.TotalQueries, report.ParseErrors,
		report.ModelCorrect, report.ModelAccuracy,
		report.FallbackCorrect, report.FallbackAccuracy,
		report.FiltersMatched, report.FilterAccuracy,
	)

	intents := make([]string, 0, len(report.ByIntent))
	for intent := range report.ByIntent {
		intents = append(intents, intent)
	}
	sort.Strings(intents)
	for _, intent := range intents {
		s := report.ByIntent[intent]
		fmt.Fprintf(&b, "- %s: model %d/%d, fallback %d/%d\n", intent, s.ModelCorrect, s.Total, s.FallbackCorrect, s.Total)
	}

	if len(report.Misclassifications) > 0 {
		b.WriteString("\nMisclassified:\n")
		for _, m := range report.Misclassifications {
			got := m.ModelIntent
			if m.Err != "" {
				got = "error: " + m.Err
			}
			fmt.Fprintf(&b, "- %q expected %s, got %s\n", m.Query, m.ExpectedIntent, got)
		}
	}

	return b.String()
}
