package handlers

import (
	"encoding/json"
	"time"

	"bitrix24-connector/internal/core/domain"
	"bitrix24-connector/internal/core/services"
	"bitrix24-connector/internal/pkg/pagination"
	"bitrix24-connector/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// BitrixHandler serves the credential management and raw REST endpoints
type BitrixHandler struct {
	tokens *services.TokenService
	bitrix *services.BitrixService
}

// NewBitrixHandler creates a new bitrix handler
func NewBitrixHandler(tokens *services.TokenService, bitrix *services.BitrixService) *BitrixHandler {
	return &BitrixHandler{
		tokens: tokens,
		bitrix: bitrix,
	}
}

// DomainInfo is one stored credential without its secrets
type DomainInfo struct {
	Domain    string `json:"domain"`
	MemberID  string `json:"member_id"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
	IsExpired bool   `json:"is_expired"`
}

// ListDomains handles GET /domains
func (h *BitrixHandler) ListDomains(c *fiber.Ctx) error {
	creds, err := h.tokens.ListCredentials(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}

	now := h.tokens.Now()
	domains := make([]DomainInfo, 0, len(creds))
	for _, cred := range creds {
		domains = append(domains, DomainInfo{
			Domain:    cred.Domain,
			MemberID:  cred.MemberID,
			CreatedAt: epoch(cred.CreatedAt),
			ExpiresAt: epoch(cred.ExpiresAt),
			IsExpired: cred.IsExpired(now),
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"count":     len(domains),
		"domains":   domains,
		"timestamp": response.Now(),
	})
}

// DeleteDomain handles DELETE /domains/:domain
func (h *BitrixHandler) DeleteDomain(c *fiber.Ctx) error {
	portal := portalParam(c)

	if err := h.tokens.DeleteCredential(c.UserContext(), portal); err != nil {
		return response.FromError(c, err)
	}

	log.Info().Str("domain", portal).Msg("Credential removed")
	return c.JSON(fiber.Map{
		"success":   true,
		"domain":    portal,
		"message":   "Credential removed",
		"timestamp": response.Now(),
	})
}

// RestoreDomains handles POST /domains/restore
func (h *BitrixHandler) RestoreDomains(c *fiber.Ctx) error {
	restored, err := h.tokens.RestoreBackup(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"restored":  restored,
		"message":   "Credentials restored from backup",
		"timestamp": response.Now(),
	})
}

// RefreshDomain handles POST /refresh/:domain
func (h *BitrixHandler) RefreshDomain(c *fiber.Ctx) error {
	portal := portalParam(c)

	cred, err := h.tokens.Refresh(c.UserContext(), portal)
	if err != nil {
		return response.FromError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"domain":     portal,
		"message":    "Token refreshed successfully",
		"expires_at": epoch(cred.ExpiresAt),
		"timestamp":  response.Now(),
	})
}

// CallMethod handles POST /api/:domain/:method, the body is the method payload
func (h *BitrixHandler) CallMethod(c *fiber.Ctx) error {
	portal := portalParam(c)
	method := c.Params("method")

	var payload map[string]any
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return response.BadRequest(c, "Request body must be a JSON object")
		}
	}

	resp, err := h.bitrix.Call(c.UserContext(), portal, method, payload)
	if err != nil {
		return response.FromError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"domain":    portal,
		"method":    method,
		"result":    resp,
		"timestamp": response.Now(),
	})
}

// TestDomain handles GET /test/:domain
func (h *BitrixHandler) TestDomain(c *fiber.Ctx) error {
	portal := portalParam(c)
	ctx := c.UserContext()

	contacts, err := h.bitrix.ListRawContacts(ctx, portal, 0, 5)
	if err != nil {
		return response.FromError(c, err)
	}

	info, err := h.bitrix.AppInfo(ctx, portal)
	if err != nil {
		return response.FromError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"domain":    portal,
		"message":   "Connection verified",
		"contacts":  contacts.Result,
		"total":     contacts.Total,
		"app_info":  info.Result,
		"timestamp": response.Now(),
	})
}

// RawContacts handles GET /bitrix/contacts/:domain?start&limit
func (h *BitrixHandler) RawContacts(c *fiber.Ctx) error {
	portal := portalParam(c)
	window := pagination.GetWindow(c)

	resp, err := h.bitrix.ListRawContacts(c.UserContext(), portal, window.Start, window.Limit)
	if err != nil {
		return response.FromError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"domain":    portal,
		"result":    resp.Result,
		"total":     resp.Total,
		"next":      resp.Next,
		"timestamp": response.Now(),
	})
}

func portalParam(c *fiber.Ctx) string {
	return domain.NormalizeDomain(c.Params("domain"))
}

func epoch(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
