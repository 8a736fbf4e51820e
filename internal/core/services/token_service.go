package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitrix24-connector/internal/adapters/persistence/models"
	"bitrix24-connector/internal/adapters/persistence/repositories"
	"bitrix24-connector/internal/config"
	"bitrix24-connector/internal/core/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// TokenService keeps one valid OAuth credential per portal
type TokenService struct {
	repo       repositories.TokenRepository
	cfg        config.BitrixConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewTokenService creates a new token service. A nil client gets one with
// the configured per-call timeout.
func NewTokenService(repo repositories.TokenRepository, cfg config.BitrixConfig, client *http.Client) *TokenService {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &TokenService{
		repo:       repo,
		cfg:        cfg,
		httpClient: client,
		now:        time.Now,
	}
}

// GetValidAccessToken returns an access token that stays valid for at least
// the expiry buffer, refreshing the stored one when needed.
func (s *TokenService) GetValidAccessToken(ctx context.Context, portal string) (string, error) {
	cred, err := s.load(ctx, portal)
	if err != nil {
		return "", err
	}

	if !cred.IsStale(s.now()) {
		return cred.AccessToken, nil
	}

	log.Debug().Str("domain", portal).Int64("expires_at", cred.ExpiresAt).Msg("Token inside expiry buffer, refreshing")

	cred, err = s.Refresh(ctx, portal)
	if err != nil {
		return "", err
	}
	if cred.IsStale(s.now()) {
		return "", fmt.Errorf("%w: refreshed token for %s expires within %s", domain.ErrRefreshFailed, portal, domain.TokenExpiryBuffer)
	}
	return cred.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new pair and overwrites the record
func (s *TokenService) Refresh(ctx context.Context, portal string) (*domain.Credential, error) {
	portal = domain.NormalizeDomain(portal)
	existing, err := s.load(ctx, portal)
	if err != nil {
		if errors.Is(err, domain.ErrNotAuthenticated) {
			return nil, fmt.Errorf("%w: no token found for domain %s", domain.ErrRefreshFailed, portal)
		}
		return nil, err
	}
	if existing.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored for domain %s", domain.ErrRefreshFailed, portal)
	}
	if !s.hasClientConfig() {
		return nil, fmt.Errorf("%w: %w", domain.ErrRefreshFailed, domain.ErrMissingClientConfig)
	}

	tok, err := s.oauthConfig(portal).TokenSource(s.clientContext(ctx), &oauth2.Token{
		RefreshToken: existing.RefreshToken,
	}).Token()
	if err != nil {
		log.Error().Err(err).Str("domain", portal).Msg("Token refresh failed")
		return nil, fmt.Errorf("%w: %s", domain.ErrRefreshFailed, describeOAuthError(err))
	}

	cred := credentialFromToken(tok, portal, existing.MemberID, existing.Scope)
	cred.Stamp(s.now())
	cred.ClientEndpoint = existing.ClientEndpoint
	cred.ServerEndpoint = existing.ServerEndpoint
	if err := s.store(ctx, cred); err != nil {
		return nil, err
	}

	log.Info().Str("domain", portal).Int64("expires_at", cred.ExpiresAt).Msg("Token refreshed")
	return cred, nil
}

// ExchangeCode trades an authorization code for the first token pair
func (s *TokenService) ExchangeCode(ctx context.Context, req domain.AuthCode) (*domain.Credential, error) {
	if !s.hasClientConfig() {
		return nil, domain.ErrMissingClientConfig
	}
	req.Domain = domain.NormalizeDomain(req.Domain)

	var opts []oauth2.AuthCodeOption
	if req.Scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", req.Scope))
	}

	tok, err := s.oauthConfig(req.Domain).Exchange(s.clientContext(ctx), req.Code, opts...)
	if err != nil {
		log.Error().Err(err).Str("domain", req.Domain).Msg("Token exchange failed")
		return nil, fmt.Errorf("token exchange failed: %s", describeOAuthError(err))
	}

	memberID := req.MemberID
	if memberID == "" {
		memberID = extraString(tok, "member_id")
	}

	cred := credentialFromToken(tok, req.Domain, memberID, req.Scope)
	cred.Stamp(s.now())
	if err := s.store(ctx, cred); err != nil {
		return nil, err
	}

	log.Info().Str("domain", req.Domain).Msg("Token exchange successful")
	return cred, nil
}

// SaveDirect stores tokens Bitrix24 handed over directly during install
func (s *TokenService) SaveDirect(ctx context.Context, req domain.DirectToken) (*domain.Credential, error) {
	cred := req.Credential()
	if cred.MemberID == "" {
		cred.MemberID = domain.UnknownMemberID
	}
	cred.Stamp(s.now())

	if err := s.store(ctx, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// IsAuthenticated reports whether a credential is stored for the portal
func (s *TokenService) IsAuthenticated(ctx context.Context, portal string) bool {
	_, err := s.load(ctx, portal)
	return err == nil
}

// ListCredentials returns every stored credential
func (s *TokenService) ListCredentials(ctx context.Context) ([]*domain.Credential, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	creds := make([]*domain.Credential, 0, len(rows))
	for _, row := range rows {
		creds = append(creds, row.ToDomain())
	}
	return creds, nil
}

// DeleteCredential removes the credential of a portal
func (s *TokenService) DeleteCredential(ctx context.Context, portal string) error {
	portal = domain.NormalizeDomain(portal)
	err := s.repo.Delete(ctx, portal)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("token for %s: %w", portal, domain.ErrNotFound)
	}
	return err
}

// BackupCredentials rewrites the backup file
func (s *TokenService) BackupCredentials(ctx context.Context) error {
	return s.repo.Backup(ctx)
}

// RestoreBackup loads the backup file into the store
func (s *TokenService) RestoreBackup(ctx context.Context) (int, error) {
	return s.repo.Restore(ctx)
}

// Now exposes the service clock so callers compute expiry against the same time source
func (s *TokenService) Now() time.Time {
	return s.now()
}

func (s *TokenService) load(ctx context.Context, portal string) (*domain.Credential, error) {
	portal = domain.NormalizeDomain(portal)
	row, err := s.repo.Get(ctx, portal)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotAuthenticated, portal)
		}
		return nil, err
	}
	return row.ToDomain(), nil
}

func (s *TokenService) store(ctx context.Context, cred *domain.Credential) error {
	cred.Domain = domain.NormalizeDomain(cred.Domain)
	if cred.Domain == "" || cred.AccessToken == "" || cred.MemberID == "" {
		return domain.ValidationError("invalid token data: access_token, domain and member_id are required")
	}
	if err := domain.CheckDomain(cred.Domain); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, models.BitrixTokenFromDomain(cred)); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *TokenService) hasClientConfig() bool {
	return s.cfg.ClientID != "" && s.cfg.ClientSecret != ""
}

func (s *TokenService) oauthConfig(portal string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  fmt.Sprintf("%s://%s/oauth/token/", s.scheme(), portal),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (s *TokenService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *TokenService) scheme() string {
	if s.cfg.Scheme == "" {
		return "https"
	}
	return s.cfg.Scheme
}

// credentialFromToken maps a token response; the caller stamps it.
func credentialFromToken(tok *oauth2.Token, portal, memberID, fallbackScope string) *domain.Credential {
	scope := extraString(tok, "scope")
	if scope == "" {
		scope = fallbackScope
	}

	cred := &domain.Credential{
		Domain:       portal,
		MemberID:     memberID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        scope,
		ExpiresIn:    extraSeconds(tok, "expires_in"),
	}
	if cred.MemberID == "" {
		cred.MemberID = domain.UnknownMemberID
	}
	return cred
}

func extraString(tok *oauth2.Token, key string) string {
	switch v := tok.Extra(key).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func extraSeconds(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		if v > 0 {
			return int64(v)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return domain.DefaultExpiresIn
}

func describeOAuthError(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorDescription != "" {
			return re.ErrorDescription
		}
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
	}
	return err.Error()
}
