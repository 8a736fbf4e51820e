package middleware

import (
	"strings"

	"bitrix24-connector/internal/config"
	"bitrix24-connector/internal/core/domain"
	"bitrix24-connector/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// TenantHeader selects the Bitrix24 portal for a contact request
const TenantHeader = "X-Bitrix-Domain"

const tenantKey = "tenant"

// ResolveTenant picks the portal from the X-Bitrix-Domain header, then the
// domain query parameter, then DEFAULT_DOMAIN.
func ResolveTenant(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenant := strings.TrimSpace(c.Get(TenantHeader))
		if tenant == "" {
			tenant = strings.TrimSpace(c.Query("domain"))
		}
		if tenant == "" {
			tenant = strings.TrimSpace(cfg.Bitrix.DefaultDomain)
		}
		if tenant == "" {
			return response.BadRequest(c, "No Bitrix24 domain: send the "+TenantHeader+" header or a domain query parameter")
		}

		c.Locals(tenantKey, domain.NormalizeDomain(tenant))
		return c.Next()
	}
}

// Tenant returns the portal chosen by ResolveTenant
func Tenant(c *fiber.Ctx) string {
	tenant, _ := c.Locals(tenantKey).(string)
	return tenant
}
