package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"

	"bitrix24-connector/internal/config"
	"bitrix24-connector/internal/core/domain"

	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 10 << 20

var methodPattern = regexp.MustCompile(`^[a-z0-9_.]+$`)

// APIResponse is the Bitrix24 REST envelope of a successful call
type APIResponse struct {
	Result json.RawMessage `json:"result"`
	Total  int             `json:"total,omitempty"`
	Next   *int            `json:"next,omitempty"`
	Time   json.RawMessage `json:"time,omitempty"`
}

// Decode unmarshals the result payload into v
func (r *APIResponse) Decode(v any) error {
	if len(r.Result) == 0 {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

type apiEnvelope struct {
	APIResponse
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func (e *apiEnvelope) hasError() bool {
	return len(e.Error) > 0 && !bytes.Equal(e.Error, []byte("null"))
}

func (e *apiEnvelope) remoteError(method string, status int) *domain.RemoteAPIError {
	code := string(e.Error)
	var s string
	if json.Unmarshal(e.Error, &s) == nil {
		code = s
	}
	return &domain.RemoteAPIError{
		Method:      method,
		Code:        code,
		Description: e.ErrorDescription,
		StatusCode:  status,
	}
}

// BitrixService is the single gateway for outbound REST calls
type BitrixService struct {
	tokens *TokenService
	client *http.Client
	scheme string
}

// NewBitrixService creates a new gateway. A nil client gets one with the
// configured per-call timeout.
func NewBitrixService(tokens *TokenService, cfg config.BitrixConfig, client *http.Client) *BitrixService {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return &BitrixService{
		tokens: tokens,
		client: client,
		scheme: scheme,
	}
}

// Call invokes a REST method for a portal. A 401 triggers exactly one
// refresh and one retry.
func (s *BitrixService) Call(ctx context.Context, portal, method string, payload map[string]any) (*APIResponse, error) {
	if !methodPattern.MatchString(method) {
		return nil, domain.ValidationError("invalid method name: %q", method)
	}

	token, err := s.tokens.GetValidAccessToken(ctx, portal)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("domain", portal).Str("method", method).Msg("Calling Bitrix24 API")

	env, status, err := s.post(ctx, portal, method, payload, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		log.Warn().Str("domain", portal).Str("method", method).Msg("Bitrix24 returned 401, refreshing token")

		cred, err := s.tokens.Refresh(ctx, portal)
		if err != nil {
			log.Error().Err(err).Str("domain", portal).Msg("Token refresh after 401 failed")
			return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
		}

		env, status, err = s.post(ctx, portal, method, payload, cred.AccessToken)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, domain.ErrAuthenticationFailed
		}
	}

	if env.hasError() || status < 200 || status >= 300 {
		apiErr := env.remoteError(method, status)
		log.Error().Str("domain", portal).Str("method", method).Int("status", status).
			Str("error", apiErr.Code).Str("description", apiErr.Description).Msg("Bitrix24 API call failed")
		return nil, apiErr
	}

	return &env.APIResponse, nil
}

// AppInfo returns app.info for the portal
func (s *BitrixService) AppInfo(ctx context.Context, portal string) (*APIResponse, error) {
	return s.Call(ctx, portal, "app.info", nil)
}

// ListRawContacts returns a raw crm.contact.list page, newest first, cut to limit
func (s *BitrixService) ListRawContacts(ctx context.Context, portal string, start, limit int) (*APIResponse, error) {
	resp, err := s.Call(ctx, portal, "crm.contact.list", map[string]any{
		"start":  start,
		"select": []string{"ID", "NAME", "LAST_NAME", "EMAIL", "PHONE"},
		"order":  map[string]string{"ID": "DESC"},
		"filter": map[string]any{},
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 {
		var rows []json.RawMessage
		if err := resp.Decode(&rows); err == nil && len(rows) > limit {
			cut, err := json.Marshal(rows[:limit])
			if err == nil {
				resp.Result = cut
			}
		}
	}
	return resp, nil
}

// post sends one request and returns the decoded envelope with the HTTP status.
// Transport failures come back as ErrTimeout or ErrUnreachable.
func (s *BitrixService) post(ctx context.Context, portal, method string, payload map[string]any, token string) (*apiEnvelope, int, error) {
	params := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		params[k] = v
	}
	params["auth"] = token

	body, err := json.Marshal(params)
	if err != nil {
		return nil, 0, domain.ValidationError("payload is not serializable: %v", err)
	}

	url := fmt.Sprintf("%s://%s/rest/%s", s.scheme, portal, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, classifyTransportError(err)
	}

	env := &apiEnvelope{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, env); err != nil && resp.StatusCode != http.StatusUnauthorized {
			return nil, resp.StatusCode, &domain.RemoteAPIError{
				Method:      method,
				Code:        "INVALID_RESPONSE",
				Description: fmt.Sprintf("unexpected response from %s (HTTP %d)", method, resp.StatusCode),
				StatusCode:  resp.StatusCode,
			}
		}
	}
	return env, resp.StatusCode, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
}
