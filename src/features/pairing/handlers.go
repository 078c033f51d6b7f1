package pairing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/contre95/playgraph/src/music"
	"github.com/gofiber/fiber/v2"
)

// Resolver looks up internal ids without registering new tracks.
type Resolver interface {
	LookupInternal(ctx context.Context, externalID string) (int64, error)
}

// Handler is the handler for the pairing feature.
type Handler struct {
	aggregator *Aggregator
	resolver   Resolver
}

// NewHandler creates a new handler for the pairing feature.
func NewHandler(aggregator *Aggregator, resolver Resolver) *Handler {
	return &Handler{aggregator: aggregator, resolver: resolver}
}

// GetPair serves GET /api/pairs?a=&b= with the edge between two external ids.
func (h *Handler) GetPair(c *fiber.Ctx) error {
	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query parameters a and b are required"})
	}
	ctx := c.UserContext()
	idA, err := h.resolver.LookupInternal(ctx, a)
	if err != nil {
		return h.fail(c, err)
	}
	idB, err := h.resolver.LookupInternal(ctx, b)
	if err != nil {
		return h.fail(c, err)
	}
	edge, err := h.aggregator.Edge(ctx, idA, idB)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"a": a, "b": b, "low_id": edge.Low, "high_id": edge.High, "count": edge.Count})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, music.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "pair not found"})
	case errors.Is(err, music.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	slog.Error("Failed to load pair", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "pair lookup failed"})
}
