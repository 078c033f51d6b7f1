package hosting

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/contre95/playgraph/src/features/config"
	"github.com/contre95/playgraph/src/features/enrichment"
	"github.com/contre95/playgraph/src/features/identity"
	"github.com/contre95/playgraph/src/features/jobs"
	"github.com/contre95/playgraph/src/features/metrics"
	"github.com/contre95/playgraph/src/features/pairing"
	"github.com/contre95/playgraph/src/features/playlists"
	"github.com/contre95/playgraph/src/features/recommend"
	"github.com/contre95/playgraph/src/features/search"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Services bundles the feature services the server exposes.
type Services struct {
	Identity   *identity.Service
	Aggregator *pairing.Aggregator
	Playlists  *playlists.Service
	Enrichment *enrichment.Service
	Search     *search.Service
	Recommend  *recommend.Service
	Metrics    *metrics.Service
	Jobs       *jobs.Service
}

// Server is the HTTP server for the application.
type Server struct {
	app  *fiber.App
	port uint32
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Manager, services Services) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		AppName:               "Playgraph",
		DisableStartupMessage: true,
		EnablePrintRoutes:     cfg.Get().Server.PrintRoutes,
		BodyLimit:             64 * 1024 * 1024, // playlist csv imports
	})

	app.Use(recover.New())
	app.Use(LogAllRequestsMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	config.RegisterRoutes(app, cfg)
	jobs.RegisterRoutes(app, services.Jobs)
	metrics.RegisterRoutes(app, services.Metrics)
	identity.RegisterRoutes(app, services.Identity)
	pairing.RegisterRoutes(app, services.Aggregator, services.Identity)
	playlists.RegisterRoutes(app, services.Playlists, services.Jobs)
	enrichment.RegisterRoutes(app, services.Enrichment, services.Jobs)
	search.RegisterRoutes(app, services.Search)
	recommend.RegisterRoutes(app, services.Recommend)

	return &Server{app: app, port: cfg.Get().Server.Port}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "port", s.port)
	return s.app.Listen(":" + fmt.Sprint(s.port))
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("Internal Server Error", "path", c.Path(), "error", err)
		return c.Status(code).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
