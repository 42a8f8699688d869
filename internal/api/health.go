package api

import (
	"whereabouts/internal/database"

	"github.com/gofiber/fiber/v2"
)

func Health(db *database.Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := db.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	}
}
