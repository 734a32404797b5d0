package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliquery/backend/internal/board"
	"github.com/intelliquery/backend/internal/normalize"
)

type stubInspector struct {
	columns map[string][]board.Column
	err     error
}

func (s stubInspector) GetBoardColumns(ctx context.Context, boardID string) ([]board.Column, error) {
	return s.columns[boardID], s.err
}

type stubCounters struct {
	counts      map[string]int64
	invalidated bool
}

func (s *stubCounters) GetCounter(ctx context.Context, name string) (int64, error) {
	return s.counts[name], nil
}

func (s *stubCounters) InvalidateIntents(ctx context.Context) error {
	s.invalidated = true
	return nil
}

func columns(ids ...string) []board.Column {
	out := make([]board.Column, 0, len(ids))
	for _, id := range ids {
		out = append(out, board.Column{ID: id, Title: id})
	}
	return out
}

func newAdminApp(h *AdminHandler) *fiber.App {
	app := fiber.New()
	app.Get("/api/v1/board/columns", h.BoardColumns)
	app.Get("/api/v1/stats", h.Stats)
	app.Delete("/api/v1/cache/intents", h.ClearIntentCache)
	return app
}

func TestBoardColumnsReportsDrift(t *testing.T) {
	inspector := stubInspector{columns: map[string][]board.Column{
		"deals":  columns(normalize.SchemaV1.DealColumns()...),
		"orders": columns("text", "text0"),
	}}
	app := newAdminApp(NewAdminHandler(inspector, normalize.SchemaV1, "deals", "orders", nil))

	status, body := do(t, app, http.MethodGet, "/api/v1/board/columns", "")
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "v1", body["schema_version"])
	assert.Equal(t, false, body["in_sync"])
	assert.Empty(t, body["deals"].(map[string]interface{})["missing"])
	assert.Len(t, body["work_orders"].(map[string]interface{})["missing"], 12)
}

func TestBoardColumnsUpstreamFailure(t *testing.T) {
	app := newAdminApp(NewAdminHandler(stubInspector{err: errors.New("timeout")}, normalize.SchemaV1, "d", "o", nil))

	status, _ := do(t, app, http.MethodGet, "/api/v1/board/columns", "")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestStatsAndCacheReset(t *testing.T) {
	counters := &stubCounters{counts: map[string]int64{
		"queries:pipeline_analysis": 4,
		"queries:risk_assessment":   1,
	}}
	app := newAdminApp(NewAdminHandler(stubInspector{}, normalize.SchemaV1, "d", "o", counters))

	status, body := do(t, app, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 5, body["total_queries"])
	assert.EqualValues(t, 4, body["by_intent"].(map[string]interface{})["pipeline_analysis"])

	status, _ = do(t, app, http.MethodDelete, "/api/v1/cache/intents", "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.True(t, counters.invalidated)
}

func TestStatsWithoutRedis(t *testing.T) {
	app := newAdminApp(NewAdminHandler(stubInspector{}, normalize.SchemaV1, "d", "o", nil))

	status, _ := do(t, app, http.MethodGet, "/api/v1/stats", "")
	assert.Equal(t, http.StatusNotImplemented, status)
}
