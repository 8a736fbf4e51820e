package handlers

import (
	"strings"

	"bitrix24-connector/internal/adapters/http/middleware"
	"bitrix24-connector/internal/core/services"
	"bitrix24-connector/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ContactHandler exposes the simplified contact API for the resolved tenant
type ContactHandler struct {
	contactService *services.ContactService
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contactService *services.ContactService) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
	}
}

// ListContacts handles GET /contacts
func (h *ContactHandler) ListContacts(c *fiber.Ctx) error {
	q := services.DefaultContactQuery()
	if err := c.QueryParser(&q); err != nil {
		return response.BadRequest(c, "Invalid query parameters")
	}
	q.OrderBy = strings.ToUpper(strings.TrimSpace(q.OrderBy))
	q.Order = strings.ToUpper(strings.TrimSpace(q.Order))

	if err := validateStruct(&q); err != nil {
		return response.FromError(c, err)
	}

	result, err := h.contactService.List(c.UserContext(), middleware.Tenant(c), q)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Contacts retrieved successfully", result)
}

// GetContact handles GET /contacts/:id
func (h *ContactHandler) GetContact(c *fiber.Ctx) error {
	contact, err := h.contactService.Get(c.UserContext(), middleware.Tenant(c), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Contact retrieved successfully", contact)
}

// CreateContact handles POST /contacts
func (h *ContactHandler) CreateContact(c *fiber.Ctx) error {
	var req services.CreateContactInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := validateStruct(&req); err != nil {
		return response.FromError(c, err)
	}

	result, err := h.contactService.Create(c.UserContext(), middleware.Tenant(c), &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Contact created successfully", result)
}

// UpdateContact handles PUT /contacts/:id
func (h *ContactHandler) UpdateContact(c *fiber.Ctx) error {
	var req services.UpdateContactInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := validateStruct(&req); err != nil {
		return response.FromError(c, err)
	}

	contact, err := h.contactService.Update(c.UserContext(), middleware.Tenant(c), c.Params("id"), &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Contact updated successfully", contact)
}

// DeleteContact handles DELETE /contacts/:id
func (h *ContactHandler) DeleteContact(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.contactService.Delete(c.UserContext(), middleware.Tenant(c), id); err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Contact deleted successfully", fiber.Map{"id": id})
}
