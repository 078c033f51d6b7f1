package playlists

import (
	"github.com/contre95/playgraph/src/music"
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes registers the routes for the playlists feature.
func RegisterRoutes(app *fiber.App, service *Service, jobService music.JobService) {
	handler := NewHandler(service, jobService)

	playlists := app.Group("/api/playlists")
	playlists.Get("/", handler.ListPlaylists)
	playlists.Post("/import", handler.ImportCSV)
	playlists.Post("/discover", handler.DiscoverPlaylists)
	playlists.Get("/:playlistId", handler.GetPlaylist)
	playlists.Post("/:playlistId/ingest", handler.IngestPlaylist)
}
