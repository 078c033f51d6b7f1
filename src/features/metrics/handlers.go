package metrics

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler handles HTTP requests for the metrics feature.
type Handler struct {
	service *Service
}

// NewHandler creates a new metrics handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetStats returns the row counts of the store.
func (h *Handler) GetStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		slog.Error("Error loading stats", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "error loading stats"})
	}
	return c.JSON(stats)
}

// Prometheus serves the default registry in the text exposition format.
func (h *Handler) Prometheus() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
