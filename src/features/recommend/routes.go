package recommend

import "github.com/gofiber/fiber/v2"

// RegisterRoutes registers the routes for the recommend feature.
func RegisterRoutes(app *fiber.App, service *Service) {
	handler := NewHandler(service)
	app.Get("/api/recommend/:trackId", handler.HandleRecommend)
}
