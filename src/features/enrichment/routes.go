package enrichment

import (
	"github.com/contre95/playgraph/src/music"
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes registers the routes for the enrichment feature.
func RegisterRoutes(app *fiber.App, service *Service, jobService music.JobService) {
	handler := NewHandler(service, jobService)
	api := app.Group("/api")
	api.Post("/backfill", handler.StartBackfill)
	api.Get("/unenriched", handler.GetUnenriched)
}
