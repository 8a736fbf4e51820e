package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitrix24-connector/internal/core/domain"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_StatusByDomainError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not authenticated", fmt.Errorf("lookup: %w", domain.ErrNotAuthenticated), http.StatusUnauthorized, CodeNotAuthenticated},
		{"auth failed", domain.ErrAuthenticationFailed, http.StatusUnauthorized, CodeAuthFailed},
		{"refresh failed", fmt.Errorf("%w: revoked", domain.ErrRefreshFailed), http.StatusUnauthorized, CodeAuthFailed},
		{"contact not found", domain.ErrContactNotFound, http.StatusNotFound, CodeNotFound},
		{"validation", domain.ValidationError("name is required"), http.StatusBadRequest, CodeValidation},
		{"timeout", domain.ErrTimeout, http.StatusRequestTimeout, CodeTimeout},
		{"unreachable", domain.ErrUnreachable, http.StatusServiceUnavailable, CodeUnreachable},
		{"remote", &domain.RemoteAPIError{Method: "crm.contact.add", Description: "Access denied", StatusCode: 403}, http.StatusInternalServerError, CodeRemoteAPI},
		{"anything else", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rich := Classify(tc.err)
			require.NotNil(t, rich)
			assert.Equal(t, tc.status, rich.Code)
			assert.Equal(t, tc.code, rich.TextCode)
			assert.Equal(t, tc.err.Error(), rich.Message)
		})
	}
}

func TestClassify_KeepsCategorizedErrors(t *testing.T) {
	in := goerrors.New("slow down", goerrors.CategoryRateLimit)

	rich := Classify(in)
	assert.Same(t, in, rich)
	assert.Equal(t, http.StatusTooManyRequests, rich.Code)

	assert.Nil(t, Classify(nil))
}

func TestFromError_WritesEnvelope(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return FromError(c, fmt.Errorf("get contact: %w", domain.ErrContactNotFound))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body Response
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.False(t, body.Success)
	assert.Equal(t, "get contact: contact resource not found", body.Message)
	assert.Equal(t, CodeNotFound, body.Code)
	assert.NotEmpty(t, body.Error)
	assert.NotEmpty(t, body.Timestamp)
}
