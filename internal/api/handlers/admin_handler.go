package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/board"
	"github.com/intelliquery/backend/internal/llm"
	"github.com/intelliquery/backend/internal/normalize"
	"github.com/intelliquery/backend/pkg/logger"
)

type BoardInspector interface {
	GetBoardColumns(ctx context.Context, boardID string) ([]board.Column, error)
}

type CounterStore interface {
	GetCounter(ctx context.Context, name string) (int64, error)
	InvalidateIntents(ctx context.Context) error
}

var statIntents = []string{
	llm.IntentPipeline,
	llm.IntentRevenue,
	llm.IntentRisk,
	llm.IntentSector,
	llm.IntentDealDetails,
	llm.IntentGeneral,
}

type AdminHandler struct {
	board            BoardInspector
	schema           normalize.Schema
	dealBoardID      string
	workOrderBoardID string
	counters         CounterStore
}

// NewAdminHandler wires the operational endpoints. counters is nil when
// redis is disabled.
func NewAdminHandler(inspector BoardInspector, schema normalize.Schema, dealBoardID, workOrderBoardID string, counters CounterStore) *AdminHandler {
	return &AdminHandler{
		board:            inspector,
		schema:           schema,
		dealBoardID:      dealBoardID,
		workOrderBoardID: workOrderBoardID,
		counters:         counters,
	}
}

// BoardColumns compares both boards' live columns with the schema in use.
func (h *AdminHandler) BoardColumns(c *fiber.Ctx) error {
	ctx := c.UserContext()

	deals, err := h.board.GetBoardColumns(ctx, h.dealBoardID)
	if err != nil {
		return boardError(c, err)
	}
	orders, err := h.board.GetBoardColumns(ctx, h.workOrderBoardID)
	if err != nil {
		return boardError(c, err)
	}

	missingDeals := normalize.MissingColumns(h.schema.DealColumns(), deals)
	missingOrders := normalize.MissingColumns(h.schema.WorkOrderColumns(), orders)

	return c.JSON(fiber.Map{
		"schema_version": h.schema.Version,
		"in_sync":        len(missingDeals) == 0 && len(missingOrders) == 0,
		"deals": fiber.Map{
			"columns": deals,
			"missing": missingDeals,
		},
		"work_orders": fiber.Map{
			"columns": orders,
			"missing": missingOrders,
		},
	})
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	if h.counters == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Query statistics require redis",
		})
	}

	counts := make(map[string]int64, len(statIntents))
	var total int64
	for _, intent := range statIntents {
		n, err := h.counters.GetCounter(c.UserContext(), "queries:"+intent)
		if err != nil {
			logger.Warn("Failed to read query counter", zap.String("intent", intent), zap.Error(err))
			continue
		}
		counts[intent] = n
		total += n
	}

	return c.JSON(fiber.Map{
		"total_queries": total,
		"by_intent":     counts,
	})
}

func (h *AdminHandler) ClearIntentCache(c *fiber.Ctx) error {
	if h.counters == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	if err := h.counters.InvalidateIntents(c.UserContext()); err != nil {
		logger.Error("Failed to clear intent cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear intent cache",
		})
	}

	logger.Info("Intent cache cleared")
	return c.SendStatus(fiber.StatusNoContent)
}

func boardError(c *fiber.Ctx, err error) error {
	logger.Error("Failed to read board columns", zap.Error(err))
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": "Failed to read board columns",
	})
}
