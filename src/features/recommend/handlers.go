package recommend

import (
	"errors"
	"log/slog"

	"github.com/contre95/playgraph/src/music"
	"github.com/gofiber/fiber/v2"
)

// Handler is the handler for the recommend feature.
type Handler struct {
	service *Service
}

// NewHandler creates a new handler for the recommend feature.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleRecommend serves GET /api/recommend/:trackId?limit=.
func (h *Handler) HandleRecommend(c *fiber.Ctx) error {
	trackID := c.Params("trackId")
	recommendations, err := h.service.Recommend(c.UserContext(), trackID, c.QueryInt("limit", 0))
	if errors.Is(err, music.ErrInvalidInput) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		slog.Error("Recommendation failed", "track", trackID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "recommendation failed"})
	}
	return c.JSON(recommendations)
}
