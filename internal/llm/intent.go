package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/intelliquery/backend/pkg/logger"
)

const (
	IntentPipeline    = "pipeline_analysis"
	IntentRevenue     = "revenue_analysis"
	IntentRisk        = "risk_assessment"
	IntentSector      = "sector_performance"
	IntentDealDetails = "deal_details"
	IntentGeneral     = "general_query"
)

var errNoJSON = errors.New("no JSON object in model output")

// Intent is the structured reading of a business question.
type Intent struct {
	Intent              string                 `json:"intent"`
	Filters             map[string]interface{} `json:"filters"`
	Metrics             []string               `json:"metrics"`
	Aggregation         string                 `json:"aggregation"`
	TimePeriod          string                 `json:"time_period"`
	ClarificationNeeded bool                   `json:"clarification_needed"`
	ClarifyingQuestions []string               `json:"clarifying_questions"`
}

// DefaultIntent is used when a question could not be understood.
func DefaultIntent() Intent {
	return Intent{
		Intent:              IntentGeneral,
		Filters:             map[string]interface{}{},
		Metrics:             []string{"count"},
		Aggregation:         "sum",
		TimePeriod:          "all",
		ClarificationNeeded: true,
		ClarifyingQuestions: []string{"Could you please rephrase your question? I had trouble understanding it."},
	}
}

var defaultClarifyingQuestions = []string{
	"Which specific metric would you like to see?",
	"For which time period?",
	"Any specific sector or status filter?",
}

// DisplayName turns an intent id such as "pipeline_analysis" into a title
// for the chat, "Pipeline Analysis".
func DisplayName(intent string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(intent, "_", " "))
}

const parseSystemPrompt = `You are a business intelligence assistant parsing natural language queries about deals and work orders.

The user has access to two datasets:
1. Deals: sales pipeline data with fields deal_code, client_code, deal_status, closure_probability, deal_value, sector, deal_stage, owner_code
2. Work Orders: project execution data with fields deal_code, execution_status, amount, billed_value, collected_amount, sector, project_stage

Common sectors: Mining, Powerline, Energy
Common statuses: Open, Closed, Won, Lost
Common probabilities: High, Medium, Low

Return a single JSON object with these keys:
- "intent": one of "pipeline_analysis", "revenue_analysis", "risk_assessment", "sector_performance", "deal_details", "general_query"
- "filters": object with optional keys sector, status, probability, date_range_start, date_range_end, owner (dates as YYYY-MM-DD)
- "metrics": list drawn from "deal_value", "count", "conversion_rate", "revenue", "billed", "collected"
- "aggregation": one of "sum", "count", "average", "trend", "comparison"
- "time_period": one of "today", "this_week", "this_month", "this_quarter", "this_year", "last_6_months", "custom", "all"
- "clarification_needed": true if the query is too ambiguous to answer
- "clarifying_questions": list of questions to ask the user when clarification is needed

Return valid JSON only.`

// ParseQuery asks the model to classify question. On any failure it returns
// DefaultIntent together with the error so callers can decide whether to
// fall back.
func (c *Client) ParseQuery(ctx context.Context, question string) (Intent, error) {
	logger.Info("Parsing query", zap.String("query", question))

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: parseSystemPrompt,
		UserPrompt:   fmt.Sprintf("Query: %s", question),
		MaxTokens:    500,
	})
	if err != nil {
		logger.Error("Failed to parse query", zap.Error(err))
		return DefaultIntent(), fmt.Errorf("failed to parse query: %w", err)
	}

	intent, err := parseIntent(resp.Content)
	if err != nil {
		logger.Error("Failed to decode intent", zap.Error(err), zap.String("content", resp.Content))
		return DefaultIntent(), fmt.Errorf("failed to decode intent: %w", err)
	}

	logger.Info("Parsed intent", zap.String("intent", intent.Intent))
	return intent, nil
}

// GenerateClarifyingQuestions asks the model for follow-up questions about
// an ambiguous query. It never fails; a generic set is returned instead.
func (c *Client) GenerateClarifyingQuestions(ctx context.Context, question, hint string) []string {
	prompt := fmt.Sprintf(`The user asked an ambiguous question: "%s"

%s

Generate 2-3 clarifying questions to help understand exactly what they want to know.
Focus on:
- Which specific metric or data they want
- Time period
- Specific filters (sector, status, etc.)

Return as a JSON array of question strings.`, question, hint)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: "You help business users refine questions about their sales and project data.",
		UserPrompt:   prompt,
		MaxTokens:    300,
	})
	if err != nil {
		logger.Error("Failed to generate clarifying questions", zap.Error(err))
		return append([]string(nil), defaultClarifyingQuestions...)
	}

	questions, err := parseQuestions(resp.Content)
	if err != nil {
		logger.Warn("Unexpected clarifying question format", zap.Error(err))
		return append([]string(nil), defaultClarifyingQuestions...)
	}
	return questions
}

// rawIntent accepts the loose shapes models produce: filters encoded as a
// JSON string, booleans as strings and single metrics as a bare string.
type rawIntent struct {
	Intent              string          `json:"intent"`
	Filters             json.RawMessage `json:"filters"`
	Metrics             interface{}     `json:"metrics"`
	Aggregation         string          `json:"aggregation"`
	TimePeriod          string          `json:"time_period"`
	ClarificationNeeded interface{}     `json:"clarification_needed"`
	ClarifyingQuestions interface{}     `json:"clarifying_questions"`
}

func parseIntent(content string) (Intent, error) {
	body, err := extractJSON(content, '{', '}')
	if err != nil {
		return Intent{}, err
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Intent{}, fmt.Errorf("failed to unmarshal intent: %w", err)
	}

	intent := Intent{
		Intent:              strings.ToLower(strings.TrimSpace(raw.Intent)),
		Filters:             decodeFilters(raw.Filters),
		Metrics:             stringList(raw.Metrics),
		Aggregation:         raw.Aggregation,
		TimePeriod:          raw.TimePeriod,
		ClarificationNeeded: cast.ToBool(raw.ClarificationNeeded),
		ClarifyingQuestions: stringList(raw.ClarifyingQuestions),
	}
	if intent.Intent == "" {
		intent.Intent = IntentGeneral
	}
	return intent, nil
}

// decodeFilters reads filters given either as an object or as a string
// holding one. Anything else, and null values inside, are dropped.
func decodeFilters(raw json.RawMessage) map[string]interface{} {
	filters := map[string]interface{}{}
	if len(raw) == 0 {
		return filters
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return filters
	}
	for k, v := range decoded {
		if v != nil {
			filters[k] = v
		}
	}
	return filters
}

func stringList(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}
		}
		return []string{t}
	default:
		out, err := cast.ToStringSliceE(t)
		if err != nil {
			return []string{}
		}
		return out
	}
}

func parseQuestions(content string) ([]string, error) {
	body, err := extractJSON(content, '[', ']')
	if err != nil {
		return nil, err
	}

	var questions []interface{}
	if err := json.Unmarshal([]byte(body), &questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}

	out := make([]string, 0, len(questions))
	for _, q := range questions {
		if s := strings.TrimSpace(cast.ToString(q)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no questions in model output")
	}
	return out, nil
}

// extractJSON pulls the outermost open..close span out of model output,
// which may wrap it in markdown fences or prose.
func extractJSON(content string, open, close byte) (string, error) {
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	return content[start : end+1], nil
}
