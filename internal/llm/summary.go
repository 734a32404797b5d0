package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intelliquery/backend/pkg/logger"
)

const maxResultChars = 6000

const summarySystemPrompt = `You are a business intelligence analyst for a founder.
Explain computed metrics in plain business language in 2-4 sentences.
Use only the numbers provided. Amounts are in INR.
If the data_quality block reports warnings, mention the caveat briefly.`

// SummarizeResult narrates a metrics result for the question that produced
// it.
func (c *Client) SummarizeResult(ctx context.Context, question, intent string, result interface{}) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	body := string(payload)
	if len(body) > maxResultChars {
		body = body[:maxResultChars] + "..."
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		UserPrompt: fmt.Sprintf(`Question: %s
Analysis: %s

Metrics (JSON):
%s`, question, DisplayName(intent), body),
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize result: %w", err)
	}

	summary := strings.TrimSpace(resp.Content)
	logger.Info("Result summarized",
		zap.String("intent", intent),
		zap.Int("summary_length", len(summary)),
	)

	return summary, nil
}
