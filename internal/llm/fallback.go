package llm

import (
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/metrics"
	"github.com/intelliquery/backend/pkg/logger"
)

// Keyword sets for classifying questions without the model, in tie-break
// order.
var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{IntentRisk, []string{"risk", "risks", "risky", "stalled", "stuck", "unpaid", "overdue", "danger"}},
	{IntentRevenue, []string{"revenue", "billed", "billing", "collected", "collection", "collections", "receivable", "receivables", "invoice", "invoiced", "income"}},
	{IntentSector, []string{"sector", "sectors", "segment", "segments", "industry", "industries", "vertical", "verticals"}},
	{IntentPipeline, []string{"pipeline", "deals", "deal", "funnel", "weighted", "forecast", "opportunities", "opportunity"}},
}

var knownSectors = []string{"mining", "powerline", "energy", "renewables", "railways", "construction", "aviation", "manufacturing"}

var probabilityWords = map[string]string{"high": "High", "medium": "Medium", "low": "Low"}

// GuessIntent classifies question by keyword when the model cannot be
// reached. It reports false when no keyword matched.
func GuessIntent(question string) (Intent, bool) {
	tokens := tokenize(question)

	best, bestScore := "", 0
	for _, group := range intentKeywords {
		score := 0
		for _, tok := range tokens {
			for _, kw := range group.keywords {
				if tok == kw {
					score++
				}
			}
		}
		if score > bestScore {
			best, bestScore = group.intent, score
		}
	}
	if best == "" {
		return Intent{}, false
	}

	metrics.LLMFallbacks.Inc()
	intent := Intent{
		Intent:              best,
		Filters:             guessFilters(tokens),
		Metrics:             []string{"count"},
		Aggregation:         "sum",
		TimePeriod:          "all",
		ClarifyingQuestions: []string{},
	}

	logger.Info("Intent guessed from keywords",
		zap.String("intent", intent.Intent),
		zap.Int("score", bestScore),
	)
	return intent, true
}

func guessFilters(tokens []string) map[string]interface{} {
	filters := map[string]interface{}{}
	for i, tok := range tokens {
		for _, sector := range knownSectors {
			if tok == sector {
				filters["sector"] = sector
			}
		}
		if label, ok := probabilityWords[tok]; ok && i+1 < len(tokens) && strings.HasPrefix(tokens[i+1], "prob") {
			filters["probability"] = label
		}
	}
	return filters
}

func tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return strings.Fields(strings.ToLower(text))
	}

	var out []string
	for _, tok := range doc.Tokens() {
		if t := strings.ToLower(strings.Trim(tok.Text, ".,!?;:'\"")); t != "" {
			out = append(out, t)
		}
	}
	return out
}
