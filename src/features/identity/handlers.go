package identity

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/contre95/playgraph/src/music"
	"github.com/gofiber/fiber/v2"
)

// Handler is the handler for the identity feature.
type Handler struct {
	service *Service
}

// NewHandler creates a new handler for the identity feature.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	ExternalID string `json:"external_id"`
}

// GetTrack resolves an external id without registering it.
func (h *Handler) GetTrack(c *fiber.Ctx) error {
	externalID := c.Params("externalId")
	id, err := h.service.LookupInternal(c.UserContext(), externalID)
	switch {
	case errors.Is(err, music.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "track not found"})
	case errors.Is(err, music.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		slog.Error("Failed to look up track", "external_id", externalID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}
	return c.JSON(music.TrackIdentity{ID: id, ExternalID: externalID})
}

// ListTracks pages through the registry with ?after=&limit=.
func (h *Handler) ListTracks(c *fiber.Ctx) error {
	after := int64(c.QueryInt("after", 0))
	limit := c.QueryInt("limit", 100)
	page, err := h.service.Page(c.UserContext(), after, limit)
	if errors.Is(err, music.ErrInvalidInput) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		slog.Error("Failed to page tracks", "after", after, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "listing failed"})
	}
	next := after
	if len(page) > 0 {
		next = page[len(page)-1].ID
	}
	return c.JSON(fiber.Map{"tracks": page, "next_after": next})
}

// RegisterTrack registers an external id directly.
func (h *Handler) RegisterTrack(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	id, err := h.service.ResolveOrCreate(c.UserContext(), req.ExternalID)
	if errors.Is(err, music.ErrInvalidInput) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		slog.Error("Failed to register track", "external_id", req.ExternalID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "registration failed"})
	}
	return c.JSON(music.TrackIdentity{ID: id, ExternalID: strings.TrimSpace(req.ExternalID)})
}
