package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/analytics"
	"github.com/intelliquery/backend/internal/dataset"
	"github.com/intelliquery/backend/internal/llm"
	"github.com/intelliquery/backend/internal/metrics"
	"github.com/intelliquery/backend/internal/quality"
	"github.com/intelliquery/backend/internal/storage/models"
	"github.com/intelliquery/backend/pkg/logger"
	"github.com/intelliquery/backend/pkg/utils"
)

// IntentParser turns questions into intents and metrics into prose.
type IntentParser interface {
	ParseQuery(ctx context.Context, question string) (llm.Intent, error)
	GenerateClarifyingQuestions(ctx context.Context, question, hint string) []string
	SummarizeResult(ctx context.Context, question, intent string, result interface{}) (string, error)
}

type SnapshotSource interface {
	Current() (*dataset.Snapshot, error)
}

type HistoryStore interface {
	InsertQueryRecord(record *models.QueryRecord) error
	GetQueryHistory(userID string, limit int) ([]models.QueryRecord, error)
	StoreFeedback(feedback *models.Feedback) error
}

type IntentCache interface {
	GetIntent(ctx context.Context, queryHash string, out interface{}) (bool, error)
	SetIntent(ctx context.Context, queryHash string, intent interface{}, ttl time.Duration) error
	IncrementCounter(ctx context.Context, name string) error
}

type Engine struct {
	parser   IntentParser
	data     SnapshotSource
	history  HistoryStore
	cache    IntentCache
	cacheTTL time.Duration
	now      func() time.Time
}

type QueryRequest struct {
	Query  string
	UserID string
}

type QueryResponse struct {
	ID                  string           `json:"id"`
	Query               string           `json:"query"`
	Intent              llm.Intent       `json:"intent"`
	Analysis            string           `json:"analysis"`
	Title               string           `json:"title"`
	Result              analytics.Result `json:"result"`
	Narrative           string           `json:"narrative,omitempty"`
	ClarifyingQuestions []string         `json:"clarifying_questions,omitempty"`
	QualityReport       quality.Report   `json:"quality_report"`
	UsedFallback        bool             `json:"used_fallback"`
	LatencyMS           int              `json:"latency_ms"`
}

// Option configures optional collaborators of an Engine.
type Option func(*Engine)

// WithHistory records every answered question.
func WithHistory(store HistoryStore) Option {
	return func(e *Engine) { e.history = store }
}

// WithIntentCache reuses parsed intents for repeated questions.
func WithIntentCache(cache IntentCache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		e.cacheTTL = ttl
	}
}

func NewEngine(parser IntentParser, data SnapshotSource, opts ...Option) *Engine {
	e := &Engine{
		parser: parser,
		data:   data,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) ProcessQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	startTime := e.now()
	queryID := uuid.New().String()

	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.String("query", req.Query),
	)

	snapshot, err := e.data.Current()
	if err != nil {
		metrics.QueryTotal.WithLabelValues("unknown", "unavailable").Inc()
		return nil, err
	}

	intent, usedFallback := e.resolveIntent(ctx, req.Query)

	questions := intent.ClarifyingQuestions
	if intent.ClarificationNeeded && len(questions) == 0 && !usedFallback {
		questions = e.parser.GenerateClarifyingQuestions(ctx, req.Query, "")
	}

	analysis, filters := Dispatch(intent, e.now())
	result := e.run(analysis, filters, snapshot)

	var narrative string
	errMsg, failed := result.Err()
	if !failed && !usedFallback {
		narrative, err = e.parser.SummarizeResult(ctx, req.Query, analysis, result)
		if err != nil {
			logger.Warn("Failed to narrate result", zap.String("query_id", queryID), zap.Error(err))
		}
	}

	latency := int(e.now().Sub(startTime).Milliseconds())

	status := "success"
	if failed {
		status = "no_data"
	}
	metrics.QueryTotal.WithLabelValues(analysis, status).Inc()
	metrics.QueryDuration.WithLabelValues(analysis).Observe(float64(latency) / 1000)

	e.record(ctx, &models.QueryRecord{
		ID:           queryID,
		UserID:       req.UserID,
		QueryText:    req.Query,
		Intent:       intent.Intent,
		Filters:      encodeFilters(filters),
		Narrative:    narrative,
		Clarified:    intent.ClarificationNeeded,
		ResultError:  errMsg,
		UsedFallback: usedFallback,
		LatencyMS:    latency,
		CreatedAt:    startTime,
	})

	logger.Info("Query processed successfully",
		zap.String("query_id", queryID),
		zap.String("intent", intent.Intent),
		zap.String("analysis", analysis),
		zap.Bool("fallback", usedFallback),
		zap.Int("latency_ms", latency),
	)

	return &QueryResponse{
		ID:                  queryID,
		Query:               req.Query,
		Intent:              intent,
		Analysis:            analysis,
		Title:               llm.DisplayName(analysis),
		Result:              result,
		Narrative:           narrative,
		ClarifyingQuestions: questions,
		QualityReport:       snapshot.Report,
		UsedFallback:        usedFallback,
		LatencyMS:           latency,
	}, nil
}

// Analyze runs one analysis directly, as the dashboards do.
func (e *Engine) Analyze(analysis string, filters analytics.Filters) (analytics.Result, error) {
	snapshot, err := e.data.Current()
	if err != nil {
		return nil, err
	}
	return e.run(analysis, filters, snapshot), nil
}

func (e *Engine) History(userID string, limit int) ([]models.QueryRecord, error) {
	if e.history == nil {
		return []models.QueryRecord{}, nil
	}
	return e.history.GetQueryHistory(userID, limit)
}

func (e *Engine) Feedback(queryID string, helpful bool, comment string) error {
	if e.history == nil {
		return fmt.Errorf("query history is not enabled")
	}
	return e.history.StoreFeedback(&models.Feedback{QueryID: queryID, Helpful: helpful, Comment: comment})
}

func (e *Engine) run(analysis string, filters analytics.Filters, snapshot *dataset.Snapshot) analytics.Result {
	switch analysis {
	case llm.IntentRevenue:
		return analytics.AnalyzeRevenue(snapshot.WorkOrders, filters)
	case llm.IntentRisk:
		return analytics.AssessRisk(snapshot.Deals, snapshot.WorkOrders, filters, e.now())
	case llm.IntentSector:
		return analytics.AnalyzeSectors(snapshot.Combined, filters)
	default:
		return analytics.AnalyzePipeline(snapshot.Deals, filters)
	}
}

// resolveIntent reads question through the cache, then the model, then the
// keyword fallback. The second result reports whether the fallback answered.
func (e *Engine) resolveIntent(ctx context.Context, question string) (llm.Intent, bool) {
	hash := utils.HashQuery(question)

	if e.cache != nil {
		var cached llm.Intent
		found, err := e.cache.GetIntent(ctx, hash, &cached)
		if err != nil {
			logger.Warn("Intent cache lookup failed", zap.Error(err))
		} else if found {
			return cached, false
		}
	}

	intent, err := e.parser.ParseQuery(ctx, question)
	if err != nil {
		if guess, ok := llm.GuessIntent(question); ok {
			logger.Warn("Model unavailable, answering from keywords", zap.Error(err))
			return guess, true
		}
		return intent, false
	}

	if e.cache != nil {
		if err := e.cache.SetIntent(ctx, hash, intent, e.cacheTTL); err != nil {
			logger.Warn("Failed to cache intent", zap.Error(err))
		}
	}
	return intent, false
}

func (e *Engine) record(ctx context.Context, record *models.QueryRecord) {
	if e.cache != nil {
		if err := e.cache.IncrementCounter(ctx, "queries:"+record.Intent); err != nil {
			logger.Debug("Failed to increment query counter", zap.Error(err))
		}
	}

	if e.history == nil {
		return
	}
	if err := e.history.InsertQueryRecord(record); err != nil {
		logger.Warn("Failed to record query", zap.String("query_id", record.ID), zap.Error(err))
	}
}

func encodeFilters(f analytics.Filters) string {
	if f.IsEmpty() {
		return ""
	}
	data, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(data)
}
