package enrichment

import (
	"errors"
	"log/slog"

	"github.com/contre95/playgraph/src/music"
	"github.com/gofiber/fiber/v2"
)

// Handler is the handler for the enrichment feature.
type Handler struct {
	service *Service
	jobs    music.JobService
}

// NewHandler creates a new handler for the enrichment feature.
func NewHandler(service *Service, jobService music.JobService) *Handler {
	return &Handler{service: service, jobs: jobService}
}

// StartBackfill queues a backfill job, POST /api/backfill?page_size=.
func (h *Handler) StartBackfill(c *fiber.Ctx) error {
	metadata := map[string]any{"trigger": "api"}
	if pageSize := c.QueryInt("page_size", 0); pageSize > 0 {
		metadata["page_size"] = pageSize
	} else if c.Query("page_size") != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "page_size must be a positive integer"})
	}
	jobID, err := h.jobs.StartJob(JobType, "Metadata backfill", metadata)
	if err != nil {
		slog.Error("Failed to start backfill job", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start backfill"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jobID, "status": "queued"})
}

// GetUnenriched reports identities still lacking metadata, GET /api/unenriched?limit=.
func (h *Handler) GetUnenriched(c *fiber.Ctx) error {
	page, err := h.service.FindUnenriched(c.UserContext(), c.QueryInt("limit", 50))
	if errors.Is(err, music.ErrInvalidInput) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		slog.Error("Failed to list unenriched tracks", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list unenriched tracks"})
	}
	return c.JSON(page)
}
