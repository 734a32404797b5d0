package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/dataset"
	"github.com/intelliquery/backend/internal/query"
	"github.com/intelliquery/backend/pkg/logger"
)

const defaultHistoryLimit = 20

type QueryHandler struct {
	queryEngine *query.Engine
}

func NewQueryHandler(queryEngine *query.Engine) *QueryHandler {
	return &QueryHandler{
		queryEngine: queryEngine,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query  string `json:"query"`
		UserID string `json:"user_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	queryReq := query.QueryRequest{
		Query:  req.Query,
		UserID: req.UserID,
	}

	response, err := h.queryEngine.ProcessQuery(c.UserContext(), queryReq)
	if err != nil {
		return queryError(c, err)
	}

	return c.JSON(response)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}

	records, err := h.queryEngine.History(userID, limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, r := range records {
		history = append(history, fiber.Map{
			"id":         r.ID,
			"query":      r.QueryText,
			"intent":     r.Intent,
			"filters":    r.Filters,
			"narrative":  r.Narrative,
			"error":      r.ResultError,
			"fallback":   r.UsedFallback,
			"latency_ms": r.LatencyMS,
			"created_at": r.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}

func (h *QueryHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		Helpful *bool  `json:"helpful"`
		Comment string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil || req.Helpful == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "helpful is required",
		})
	}

	if err := h.queryEngine.Feedback(c.Params("id"), *req.Helpful, req.Comment); err != nil {
		logger.Warn("Failed to store feedback", zap.String("query_id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func queryError(c *fiber.Ctx, err error) error {
	if errors.Is(err, dataset.ErrNotLoaded) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Board data is still loading, please retry shortly",
		})
	}

	logger.Error("Failed to process query", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to process query",
	})
}
