package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/analytics"
	"github.com/intelliquery/backend/internal/dataset"
	"github.com/intelliquery/backend/internal/query"
	"github.com/intelliquery/backend/internal/storage/models"
	"github.com/intelliquery/backend/pkg/logger"
)

type DatasetLoader interface {
	Current() (*dataset.Snapshot, error)
	Load(ctx context.Context, trigger string) (*dataset.Snapshot, error)
}

type LoadHistory interface {
	GetLoadRuns(limit int) ([]models.LoadRun, error)
	GetLoadIssues(loadID string) ([]models.QualityIssue, error)
}

var filterParams = []string{"sector", "status", "probability", "owner", "date_range_start", "date_range_end"}

type DashboardHandler struct {
	queryEngine *query.Engine
	loader      DatasetLoader
	loads       LoadHistory
}

// NewDashboardHandler builds the dashboard endpoints. loads may be nil.
func NewDashboardHandler(queryEngine *query.Engine, loader DatasetLoader, loads LoadHistory) *DashboardHandler {
	return &DashboardHandler{
		queryEngine: queryEngine,
		loader:      loader,
		loads:       loads,
	}
}

// Analysis serves one analysis with filters taken from the query string.
func (h *DashboardHandler) Analysis(analysis string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		values := make(map[string]interface{}, len(filterParams))
		for _, key := range filterParams {
			if v := c.Query(key); v != "" {
				values[key] = v
			}
		}

		result, err := h.queryEngine.Analyze(analysis, analytics.FiltersFromMap(values))
		if err != nil {
			return queryError(c, err)
		}
		return c.JSON(result)
	}
}

func (h *DashboardHandler) Quality(c *fiber.Ctx) error {
	snapshot, err := h.loader.Current()
	if err != nil {
		return queryError(c, err)
	}

	return c.JSON(fiber.Map{
		"load_id":        snapshot.LoadID,
		"loaded_at":      snapshot.LoadedAt.Unix(),
		"schema_version": snapshot.SchemaVersion,
		"deals":          len(snapshot.Deals),
		"work_orders":    len(snapshot.WorkOrders),
		"issues":         snapshot.Issues,
		"report":         snapshot.Report,
		"markdown":       snapshot.Report.Markdown(),
	})
}

func (h *DashboardHandler) Refresh(c *fiber.Ctx) error {
	snapshot, err := h.loader.Load(c.UserContext(), dataset.TriggerManual)
	if err != nil {
		logger.Error("Manual refresh failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to refresh board data",
		})
	}

	return c.JSON(fiber.Map{
		"load_id":     snapshot.LoadID,
		"loaded_at":   snapshot.LoadedAt.Unix(),
		"deals":       len(snapshot.Deals),
		"work_orders": len(snapshot.WorkOrders),
		"issues":      len(snapshot.Issues),
	})
}

func (h *DashboardHandler) LoadRuns(c *fiber.Ctx) error {
	if h.loads == nil {
		return c.JSON(fiber.Map{"runs": []interface{}{}})
	}

	runs, err := h.loads.GetLoadRuns(c.QueryInt("limit", 10))
	if err != nil {
		logger.Error("Failed to load run history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load run history",
		})
	}

	out := make([]fiber.Map, 0, len(runs))
	for _, r := range runs {
		out = append(out, fiber.Map{
			"id":          r.ID,
			"trigger":     r.Trigger,
			"status":      r.Status,
			"deals":       r.DealCount,
			"work_orders": r.WorkOrderCount,
			"error":       r.Error,
			"duration_ms": r.DurationMS,
			"started_at":  r.StartedAt.Unix(),
		})
	}
	return c.JSON(fiber.Map{"runs": out})
}

func (h *DashboardHandler) LoadIssues(c *fiber.Ctx) error {
	if h.loads == nil {
		return c.JSON(fiber.Map{"issues": []interface{}{}})
	}

	issues, err := h.loads.GetLoadIssues(c.Params("id"))
	if err != nil {
		logger.Error("Failed to load quality issues", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load quality issues",
		})
	}

	out := make([]fiber.Map, 0, len(issues))
	for _, i := range issues {
		out = append(out, fiber.Map{
			"dataset":    i.Dataset,
			"kind":       i.Kind,
			"column":     i.Column,
			"count":      i.Count,
			"percentage": i.Percentage,
			"severity":   i.Severity,
			"samples":    i.Samples,
		})
	}
	return c.JSON(fiber.Map{"issues": out})
}

func (h *DashboardHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready reports ready once a snapshot has been loaded.
func (h *DashboardHandler) Ready(c *fiber.Ctx) error {
	snapshot, err := h.loader.Current()
	if errors.Is(err, dataset.ErrNotLoaded) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "loading",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"status":    "ready",
		"load_id":   snapshot.LoadID,
		"loaded_at": snapshot.LoadedAt.Unix(),
	})
}
