package pairing

import "github.com/gofiber/fiber/v2"

// RegisterRoutes registers the routes for the pairing feature.
func RegisterRoutes(app *fiber.App, aggregator *Aggregator, resolver Resolver) {
	handler := NewHandler(aggregator, resolver)
	app.Get("/api/pairs", handler.GetPair)
}
