package config

import (
	"github.com/gofiber/fiber/v2"
)

// Handler is the handler for the config feature.
type Handler struct {
	configManager *Manager
}

// NewHandler creates a new handler for the config feature.
func NewHandler(configManager *Manager) *Handler {
	return &Handler{
		configManager: configManager,
	}
}

// GetConfig returns the redacted configuration, as YAML when asked for.
func (h *Handler) GetConfig(c *fiber.Ctx) error {
	if c.Query("format") == "yaml" {
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.SendString(h.configManager.GetYAML())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(h.configManager.GetJSON())
}

// ReloadConfig re-reads the config file from disk.
func (h *Handler) ReloadConfig(c *fiber.Ctx) error {
	if err := h.configManager.Reload(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "reloaded"})
}
