package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliquery/backend/internal/analytics"
	"github.com/intelliquery/backend/internal/dataset"
	"github.com/intelliquery/backend/internal/join"
	"github.com/intelliquery/backend/internal/llm"
	"github.com/intelliquery/backend/internal/normalize"
	"github.com/intelliquery/backend/internal/quality"
	"github.com/intelliquery/backend/internal/storage/models"
)

type fakeParser struct {
	intent     llm.Intent
	err        error
	parseCalls int
	summary    string
	questions  []string
}

func (p *fakeParser) ParseQuery(ctx context.Context, question string) (llm.Intent, error) {
	p.parseCalls++
	if p.err != nil {
		return llm.DefaultIntent(), p.err
	}
	return p.intent, nil
}

func (p *fakeParser) GenerateClarifyingQuestions(ctx context.Context, question, hint string) []string {
	return p.questions
}

func (p *fakeParser) SummarizeResult(ctx context.Context, question, intent string, result interface{}) (string, error) {
	return p.summary, nil
}

type fakeSource struct {
	snapshot *dataset.Snapshot
}

func (s fakeSource) Current() (*dataset.Snapshot, error) {
	if s.snapshot == nil {
		return nil, dataset.ErrNotLoaded
	}
	return s.snapshot, nil
}

type fakeHistory struct {
	records  []models.QueryRecord
	feedback []models.Feedback
}

func (h *fakeHistory) InsertQueryRecord(r *models.QueryRecord) error {
	h.records = append(h.records, *r)
	return nil
}

func (h *fakeHistory) GetQueryHistory(userID string, limit int) ([]models.QueryRecord, error) {
	return h.records, nil
}

func (h *fakeHistory) StoreFeedback(f *models.Feedback) error {
	h.feedback = append(h.feedback, *f)
	return nil
}

type memoryCache struct {
	mu       sync.Mutex
	intents  map[string]llm.Intent
	counters map[string]int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{intents: map[string]llm.Intent{}, counters: map[string]int{}}
}

func (c *memoryCache) GetIntent(ctx context.Context, hash string, out interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	intent, ok := c.intents[hash]
	if ok {
		*out.(*llm.Intent) = intent
	}
	return ok, nil
}

func (c *memoryCache) SetIntent(ctx context.Context, hash string, intent interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents[hash] = intent.(llm.Intent)
	return nil
}

func (c *memoryCache) IncrementCounter(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name]++
	return nil
}

func str(s string) *string   { return &s }
func num(f float64) *float64 { return &f }

func testSnapshot() *dataset.Snapshot {
	deals := []normalize.Deal{
		{DealCode: str("D1"), Sector: str("Mining"), DealStatus: str("Open"), ClosureProbability: "High", DealValue: num(100)},
		{DealCode: str("D2"), Sector: str("Powerline"), DealStatus: str("Open"), ClosureProbability: "Low", DealValue: num(50)},
	}
	orders := []normalize.WorkOrder{
		{DealCode: str("D1"), Sector: str("Mining"), BilledValueExclGST: num(80), CollectedAmount: num(0)},
	}
	tr := quality.NewTracker()
	return &dataset.Snapshot{
		LoadID:     "load-1",
		Deals:      deals,
		WorkOrders: orders,
		Combined:   join.DealsAndOrders(deals, orders, tr),
		Report:     tr.Report(),
	}
}

func TestProcessQuery(t *testing.T) {
	parser := &fakeParser{
		intent: llm.Intent{
			Intent:  llm.IntentPipeline,
			Filters: map[string]interface{}{"sector": "mining"},
		},
		summary: "Mining has one deal worth 100.",
	}
	history := &fakeHistory{}
	cache := newMemoryCache()
	e := NewEngine(parser, fakeSource{testSnapshot()}, WithHistory(history), WithIntentCache(cache, time.Hour))

	resp, err := e.ProcessQuery(context.Background(), QueryRequest{Query: "Pipeline for Mining?", UserID: "u1"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, llm.IntentPipeline, resp.Analysis)
	assert.Equal(t, "Pipeline Analysis", resp.Title)
	assert.Equal(t, 1, resp.Result["total_deals"])
	assert.Equal(t, "Mining has one deal worth 100.", resp.Narrative)
	assert.False(t, resp.UsedFallback)

	require.Len(t, history.records, 1)
	rec := history.records[0]
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, `{"sector":"mining"}`, rec.Filters)
	assert.Equal(t, "Mining has one deal worth 100.", rec.Narrative)
	assert.Equal(t, 1, cache.counters["queries:pipeline_analysis"])

	_, err = e.ProcessQuery(context.Background(), QueryRequest{Query: "pipeline   for mining?"})
	require.NoError(t, err)
	assert.Equal(t, 1, parser.parseCalls, "second question should be served from the intent cache")
}

func TestProcessQueryDispatch(t *testing.T) {
	tests := []struct {
		intent   string
		key      string
		analysis string
	}{
		{intent: llm.IntentRevenue, key: "total_billed", analysis: llm.IntentRevenue},
		{intent: llm.IntentRisk, key: "risk_list", analysis: llm.IntentRisk},
		{intent: llm.IntentSector, key: "sectors", analysis: llm.IntentSector},
		{intent: llm.IntentDealDetails, key: "top_deals", analysis: llm.IntentPipeline},
		{intent: llm.IntentGeneral, key: "top_deals", analysis: llm.IntentPipeline},
	}

	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			e := NewEngine(&fakeParser{intent: llm.Intent{Intent: tt.intent}}, fakeSource{testSnapshot()})

			resp, err := e.ProcessQuery(context.Background(), QueryRequest{Query: "q"})
			require.NoError(t, err)
			assert.Equal(t, tt.analysis, resp.Analysis)
			assert.Contains(t, resp.Result, tt.key)
		})
	}
}

func TestProcessQueryFallsBackToKeywords(t *testing.T) {
	parser := &fakeParser{err: errors.New("circuit breaker is open"), summary: "unused"}
	cache := newMemoryCache()
	e := NewEngine(parser, fakeSource{testSnapshot()}, WithIntentCache(cache, time.Hour))

	resp, err := e.ProcessQuery(context.Background(), QueryRequest{Query: "Which deals are at risk?"})
	require.NoError(t, err)

	assert.True(t, resp.UsedFallback)
	assert.Equal(t, llm.IntentRisk, resp.Analysis)
	assert.Empty(t, resp.Narrative)
	assert.Empty(t, cache.intents, "fallback intents are not cached")
}

func TestProcessQueryUnparsedAsksForClarification(t *testing.T) {
	parser := &fakeParser{err: errors.New("model down")}
	e := NewEngine(parser, fakeSource{testSnapshot()})

	resp, err := e.ProcessQuery(context.Background(), QueryRequest{Query: "hello there"})
	require.NoError(t, err)

	assert.False(t, resp.UsedFallback)
	assert.Equal(t, llm.IntentGeneral, resp.Intent.Intent)
	assert.True(t, resp.Intent.ClarificationNeeded)
	assert.Equal(t, llm.DefaultIntent().ClarifyingQuestions, resp.ClarifyingQuestions)
	assert.Equal(t, llm.IntentPipeline, resp.Analysis)
}

func TestProcessQueryGeneratesMissingQuestions(t *testing.T) {
	parser := &fakeParser{
		intent:    llm.Intent{Intent: llm.IntentPipeline, ClarificationNeeded: true},
		questions: []string{"Which sector?"},
	}
	e := NewEngine(parser, fakeSource{testSnapshot()})

	resp, err := e.ProcessQuery(context.Background(), QueryRequest{Query: "how are deals"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Which sector?"}, resp.ClarifyingQuestions)
}

func TestProcessQueryNoData(t *testing.T) {
	parser := &fakeParser{intent: llm.Intent{Intent: llm.IntentRevenue, Filters: map[string]interface{}{"sector": "Aviation"}}, summary: "unused"}
	history := &fakeHistory{}
	e := NewEngine(parser, fakeSource{testSnapshot()}, WithHistory(history))

	resp, err := e.ProcessQuery(context.Background(), QueryRequest{Query: "aviation revenue"})
	require.NoError(t, err)

	msg, failed := resp.Result.Err()
	assert.True(t, failed)
	assert.Equal(t, analytics.NoDataMessage, msg)
	assert.Empty(t, resp.Narrative)
	assert.Equal(t, analytics.NoDataMessage, history.records[0].ResultError)
}

func TestProcessQueryBeforeLoad(t *testing.T) {
	e := NewEngine(&fakeParser{}, fakeSource{})

	_, err := e.ProcessQuery(context.Background(), QueryRequest{Query: "pipeline"})
	assert.ErrorIs(t, err, dataset.ErrNotLoaded)

	_, err = e.Analyze(llm.IntentPipeline, analytics.Filters{})
	assert.ErrorIs(t, err, dataset.ErrNotLoaded)
}

func TestFeedbackAndHistory(t *testing.T) {
	e := NewEngine(&fakeParser{}, fakeSource{testSnapshot()})
	assert.Error(t, e.Feedback("q1", true, ""))
	records, err := e.History("u1", 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	history := &fakeHistory{}
	e = NewEngine(&fakeParser{}, fakeSource{testSnapshot()}, WithHistory(history))
	require.NoError(t, e.Feedback("q1", false, "wrong sector"))
	assert.Equal(t, "wrong sector", history.feedback[0].Comment)
}
