package handlers

import (
	"time"

	"bitrix24-connector/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const serviceName = "bitrix24-connector"

// HealthHandler handles health check endpoints
type HealthHandler struct {
	ping    func() error
	mode    string
	started time.Time
}

// NewHealthHandler creates a new health handler; ping checks the database
func NewHealthHandler(ping func() error, mode string) *HealthHandler {
	return &HealthHandler{
		ping:    ping,
		mode:    mode,
		started: time.Now(),
	}
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "running",
		"service": serviceName,
		"mode":    h.mode,
		"endpoints": fiber.Map{
			"install":  "/install",
			"health":   "/health",
			"domains":  "/domains",
			"contacts": "/contacts",
		},
		"timestamp": response.Now(),
	})
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	dbStatus := "healthy"
	status := "ok"
	code := fiber.StatusOK
	if err := h.ping(); err != nil {
		dbStatus = "unhealthy"
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"service":   serviceName,
		"timestamp": response.Now(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"checks": fiber.Map{
			"database": dbStatus,
		},
	})
}
