package identity

import "github.com/gofiber/fiber/v2"

// RegisterRoutes registers the routes for the identity feature.
func RegisterRoutes(app *fiber.App, service *Service) {
	handler := NewHandler(service)
	tracks := app.Group("/api/tracks")
	tracks.Get("/", handler.ListTracks)
	tracks.Post("/", handler.RegisterTrack)
	tracks.Get("/:externalId", handler.GetTrack)
}
