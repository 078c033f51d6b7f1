package hosting

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// quietPaths are polled often and only logged at debug level.
var quietPaths = []string{"/jobs", "/metrics", "/health"}

// LogAllRequestsMiddleware logs every request with its status and duration.
func LogAllRequestsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start).String(),
			"ip", c.IP(),
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			slog.Error("Request failed", attrs...)
		case isQuiet(c.Path()):
			slog.Debug("Request", attrs...)
		default:
			slog.Info("Request", attrs...)
		}
		return err
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
