package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"bitrix24-connector/internal/core/domain"
	"bitrix24-connector/internal/core/services"
	"bitrix24-connector/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// InstallHandler receives the Bitrix24 install callbacks
type InstallHandler struct {
	installService *services.InstallService
}

// NewInstallHandler creates a new install handler
func NewInstallHandler(installService *services.InstallService) *InstallHandler {
	return &InstallHandler{installService: installService}
}

// Install handles GET and POST /install
func (h *InstallHandler) Install(c *fiber.Ctx) error {
	fields, err := installFields(c)
	if err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	req, err := domain.ParseInstall(fields)
	if err != nil {
		log.Warn().
			Str("method", c.Method()).
			Strs("body_keys", keys(fields.Body)).
			Strs("query_keys", keys(fields.Query)).
			Msg("Unrecognized install request")
		return response.FromError(c, err)
	}

	result, err := h.installService.Install(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}

	return c.JSON(result)
}

// installFields flattens the body and query into bracket keyed maps,
// the same shape Bitrix24 uses for form posts.
func installFields(c *fiber.Ctx) (domain.InstallFields, error) {
	fields := domain.InstallFields{
		Body:  map[string]string{},
		Query: map[string]string{},
	}

	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		fields.Query[string(k)] = string(v)
	})

	body := c.Body()
	if len(body) == 0 {
		return fields, nil
	}

	contentType := strings.ToLower(string(c.Request().Header.ContentType()))
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return fields, err
		}
		flatten("", payload, fields.Body)

	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return fields, err
		}
		for k, v := range form.Value {
			if len(v) > 0 {
				fields.Body[k] = v[0]
			}
		}

	default:
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			fields.Body[string(k)] = string(v)
		})
	}

	return fields, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "[" + k + "]"
		}

		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(val)
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
