package middleware

import (
	"errors"
	"strings"

	"bitrix24-connector/internal/config"
	"bitrix24-connector/internal/pkg/jwt"
	"bitrix24-connector/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AdminOnly guards the management endpoints with an HS256 bearer token.
// Without ADMIN_JWT_SECRET the endpoints stay open.
func AdminOnly(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.AdminGuardEnabled() {
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return response.Unauthorized(c, "Admin token required")
		}

		claims, err := jwt.ValidateAdminToken(strings.TrimPrefix(authHeader, "Bearer "), cfg.Admin.JWTSecret)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return response.Unauthorized(c, "Admin token expired")
			}
			return response.Unauthorized(c, "Invalid admin token")
		}

		c.Locals("admin", claims.Subject)
		return c.Next()
	}
}
