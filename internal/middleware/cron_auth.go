package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CronAuthMiddleware admits only requests carrying "Authorization: Bearer <secret>".
// An empty secret rejects every request.
func CronAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(strings.TrimPrefix(c.Get("Authorization"), "Bearer "))

		if secret == "" || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			log.Printf("🚫 [SCHEDULER] Rejected trigger from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("cron_trigger", true)
		return c.Next()
	}
}
