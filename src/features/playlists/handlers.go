package playlists

import (
	"bytes"
	"errors"
	"log/slog"

	"github.com/contre95/playgraph/src/music"
	"github.com/gofiber/fiber/v2"
)

// Handler is the handler for the playlists feature.
type Handler struct {
	service *Service
	jobs    music.JobService
}

// NewHandler creates a new handler for the playlists feature.
func NewHandler(service *Service, jobService music.JobService) *Handler {
	return &Handler{service: service, jobs: jobService}
}

// ListPlaylists returns the external ids of the stored playlists.
func (h *Handler) ListPlaylists(c *fiber.Ctx) error {
	ids, err := h.service.List(c.UserContext())
	if err != nil {
		slog.Error("Failed to list playlists", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list playlists"})
	}
	return c.JSON(fiber.Map{"playlists": ids})
}

// GetPlaylist returns a stored playlist.
func (h *Handler) GetPlaylist(c *fiber.Ctx) error {
	playlist, err := h.service.Get(c.UserContext(), c.Params("playlistId"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(playlist)
}

// IngestPlaylist ingests a playlist inline, or queues a job with ?async=true.
func (h *Handler) IngestPlaylist(c *fiber.Ctx) error {
	playlistID := c.Params("playlistId")
	if c.QueryBool("async", false) {
		jobID, err := h.jobs.StartJob(IngestJobType, "Ingest playlist "+playlistID, map[string]any{"playlist_id": playlistID})
		if err != nil {
			slog.Error("Failed to start ingest job", "playlist", playlistID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start ingest job"})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jobID, "status": "queued"})
	}

	report, err := h.service.Ingest(c.UserContext(), playlistID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(report)
}

// DiscoverPlaylists queues a discovery job for ?q=&limit=.
func (h *Handler) DiscoverPlaylists(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing query parameter q"})
	}
	metadata := map[string]any{"query": query}
	if limit := c.QueryInt("limit", 0); limit > 0 {
		metadata["limit"] = limit
	}
	jobID, err := h.jobs.StartJob(DiscoverJobType, "Discover playlists for "+query, metadata)
	if err != nil {
		slog.Error("Failed to start discovery job", "query", query, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start discovery job"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jobID, "status": "queued"})
}

// ImportCSV saves and aggregates the playlists in a csv request body.
func (h *Handler) ImportCSV(c *fiber.Ctx) error {
	report, err := h.service.Import(c.UserContext(), bytes.NewReader(c.Body()))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(report)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, music.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, music.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "playlist not found"})
	case errors.Is(err, music.ErrUpstreamUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	slog.Error("Playlist request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "playlist request failed"})
}
