package syncapi

import (
	"strconv"

	"sync-bridge/core/engine"
	"sync-bridge/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the sync API.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the sync routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Get("/sources", h.HandleSources)
	group.Get("/stats", h.HandleStats)
	group.Get("/runs", h.HandleRuns)
	group.Post("/:source/run", h.HandleRun)
	group.Post("/:source/reset", h.HandleReset)
}

// HandleSources lists the registered integrations.
func (h *Handler) HandleSources(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"sources": h.service.Sources()})
}

// HandleStats returns per-source cursor stats and mapping counts. An optional
// ?source= query scopes the result.
func (h *Handler) HandleStats(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	stats, err := h.service.Stats(c.Context(), c.Query("source"))
	if err != nil {
		l.Error("Stats query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"stats": stats})
}

// HandleRuns returns recent run history, newest first. Supports ?source= and
// ?limit= queries.
func (h *Handler) HandleRuns(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := h.service.Runs(c.Context(), c.Query("source"), limit)
	if err != nil {
		l.Error("Run history query failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"runs": runs})
}

// HandleRun triggers a reconciliation for one source. Query flags: dry_run
// previews the create/update decisions without mutating anything; full
// ignores the stored resume token.
func (h *Handler) HandleRun(c *fiber.Ctx) error {
	source := c.Params("source")
	l := logger.WithRayID(h.service.logger, c)

	opts := engine.Options{
		DryRun: c.QueryBool("dry_run"),
		Full:   c.QueryBool("full"),
	}

	if _, ok := h.service.registry.Get(source); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown source: " + source,
		})
	}

	stats, err := h.service.Trigger(c.Context(), source, opts)
	if err != nil {
		l.Error("Reconciliation run failed", zap.String("source", source), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"stats": stats,
		})
	}
	return c.JSON(fiber.Map{"stats": stats})
}

// HandleReset clears the cursor and mappings for one source.
func (h *Handler) HandleReset(c *fiber.Ctx) error {
	source := c.Params("source")
	l := logger.WithRayID(h.service.logger, c)

	if err := h.service.Reset(c.Context(), source); err != nil {
		l.Error("Reset failed", zap.String("source", source), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	l.Info("Sync state reset", zap.String("source", source))
	return c.JSON(fiber.Map{"status": "reset", "source": source})
}
