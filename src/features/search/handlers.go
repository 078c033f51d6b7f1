package search

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// Handler is the handler for the search feature.
type Handler struct {
	service *Service
}

// NewHandler creates a new handler for the search feature.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleSearch serves GET /api/search?q=&limit=.
func (h *Handler) HandleSearch(c *fiber.Ctx) error {
	if !c.Context().QueryArgs().Has("q") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing query parameter q"})
	}
	results, err := h.service.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 0))
	if err != nil {
		slog.Error("Search failed", "query", c.Query("q"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "search failed"})
	}
	return c.JSON(results)
}
