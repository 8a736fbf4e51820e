package services

import (
	"context"
	"fmt"
	"time"

	"bitrix24-connector/internal/core/domain"

	"github.com/rs/zerolog/log"
)

// InstallResult is returned to Bitrix24 after a successful install
type InstallResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Domain    string `json:"domain"`
	MemberID  string `json:"member_id"`
	Timestamp string `json:"timestamp"`
}

// InstallService persists credentials for each supported install format
type InstallService struct {
	tokens *TokenService
	remote RemoteCaller
}

// NewInstallService creates a new install service
func NewInstallService(tokens *TokenService, remote RemoteCaller) *InstallService {
	return &InstallService{
		tokens: tokens,
		remote: remote,
	}
}

// Install stores the credential carried (or earned) by the request
func (s *InstallService) Install(ctx context.Context, req domain.InstallRequest) (*InstallResult, error) {
	var (
		cred *domain.Credential
		err  error
	)

	switch r := req.(type) {
	case domain.DirectToken:
		log.Info().Str("domain", r.Domain).Msg("Installing from ONAPPINSTALL event")
		cred, err = s.tokens.SaveDirect(ctx, r)
	case domain.HybridForm:
		log.Info().Str("domain", r.Domain).Str("placement", r.Placement).Msg("Installing from application interface")
		cred, err = s.tokens.SaveDirect(ctx, r.DirectToken)
	case domain.AuthCode:
		log.Info().Str("domain", r.Domain).Msg("Installing from authorization code")
		cred, err = s.tokens.ExchangeCode(ctx, r)
	default:
		return nil, domain.ValidationError("missing required parameters")
	}
	if err != nil {
		return nil, fmt.Errorf("installation failed: %w", err)
	}

	verified := s.verify(ctx, cred.Domain)
	if verified.Failed() {
		log.Warn().Err(verified.Err).Str("domain", cred.Domain).Str("step", verified.Step).Msg("Installed but verification call failed")
	} else {
		log.Info().Str("domain", cred.Domain).Int("contacts", verified.Value).Msg("Installation verified")
	}

	return &InstallResult{
		Success:   true,
		Message:   "Installation successful",
		Domain:    cred.Domain,
		MemberID:  cred.MemberID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// verify lists the first contacts to prove the stored token works
func (s *InstallService) verify(ctx context.Context, portal string) domain.Result[int] {
	const step = "verify install"

	resp, err := s.remote.Call(ctx, portal, "crm.contact.list", map[string]any{
		"start":  0,
		"select": []string{"ID", "NAME"},
		"order":  map[string]string{"ID": "DESC"},
	})
	if err != nil {
		return domain.Fail[int](step, err)
	}

	var rows []map[string]any
	if err := resp.Decode(&rows); err != nil {
		return domain.Fail[int](step, err)
	}
	if len(rows) > 5 {
		rows = rows[:5]
	}
	return domain.Ok(step, len(rows))
}
