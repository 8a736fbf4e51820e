package domain

import (
	"strconv"
	"strings"
)

// InstallKind discriminates the install payload formats Bitrix24 sends
type InstallKind string

const (
	InstallDirectToken InstallKind = "direct_token" // ONAPPINSTALL event with an auth object
	InstallHybridForm  InstallKind = "hybrid_form"  // application interface launch, AUTH_ID in body or query
	InstallAuthCode    InstallKind = "auth_code"    // classic OAuth authorization code
)

// InstallRequest is one of DirectToken, HybridForm or AuthCode.
type InstallRequest interface {
	Kind() InstallKind
	TenantDomain() string
	Member() string
}

// DirectToken carries ready-to-use tokens from the ONAPPINSTALL event
type DirectToken struct {
	AccessToken    string
	RefreshToken   string
	Domain         string
	MemberID       string
	Scope          string
	ExpiresIn      int64
	ClientEndpoint string
	ServerEndpoint string
}

func (DirectToken) Kind() InstallKind      { return InstallDirectToken }
func (d DirectToken) TenantDomain() string { return d.Domain }
func (d DirectToken) Member() string       { return d.MemberID }

// Credential converts the payload into an unstamped credential.
func (d DirectToken) Credential() Credential {
	return Credential{
		Domain:         d.Domain,
		MemberID:       d.MemberID,
		AccessToken:    d.AccessToken,
		RefreshToken:   d.RefreshToken,
		TokenType:      DefaultTokenType,
		Scope:          d.Scope,
		ExpiresIn:      d.ExpiresIn,
		ClientEndpoint: d.ClientEndpoint,
		ServerEndpoint: d.ServerEndpoint,
	}
}

// HybridForm is the application interface format, fields split across body and query
type HybridForm struct {
	DirectToken
	Placement string
	Lang      string
	Protocol  string
}

func (HybridForm) Kind() InstallKind { return InstallHybridForm }

// AuthCode needs an exchange at the portal's token endpoint
type AuthCode struct {
	Code     string
	Domain   string
	MemberID string
	Scope    string
}

func (AuthCode) Kind() InstallKind      { return InstallAuthCode }
func (a AuthCode) TenantDomain() string { return a.Domain }
func (a AuthCode) Member() string       { return a.MemberID }

// InstallFields is a flat view over the request; nested body objects use
// bracket keys such as "auth[access_token]".
type InstallFields struct {
	Body  map[string]string
	Query map[string]string
}

func (f InstallFields) body(key string) string {
	return strings.TrimSpace(f.Body[key])
}

// pick returns the body value, falling back to the query string.
func (f InstallFields) pick(key string) string {
	if v := f.body(key); v != "" {
		return v
	}
	return strings.TrimSpace(f.Query[key])
}

// ParseInstall classifies an install request. Precedence follows what Bitrix24
// actually sends: ONAPPINSTALL event, then application interface, then code.
func ParseInstall(f InstallFields) (InstallRequest, error) {
	switch {
	case f.body("event") == "ONAPPINSTALL" && f.body("auth[access_token]") != "":
		d := DirectToken{
			AccessToken:    f.body("auth[access_token]"),
			RefreshToken:   f.body("auth[refresh_token]"),
			Domain:         NormalizeDomain(f.body("auth[domain]")),
			MemberID:       f.body("auth[member_id]"),
			Scope:          f.body("auth[scope]"),
			ExpiresIn:      parseSeconds(f.body("auth[expires_in]")),
			ClientEndpoint: f.body("auth[client_endpoint]"),
			ServerEndpoint: f.body("auth[server_endpoint]"),
		}
		if d.Domain == "" {
			return nil, ValidationError("missing required parameters: auth[domain]")
		}
		if err := CheckDomain(d.Domain); err != nil {
			return nil, err
		}
		return d, nil

	case f.pick("AUTH_ID") != "" && f.pick("DOMAIN") != "":
		h := HybridForm{
			DirectToken: DirectToken{
				AccessToken:  f.pick("AUTH_ID"),
				RefreshToken: f.pick("REFRESH_ID"),
				Domain:       NormalizeDomain(f.pick("DOMAIN")),
				MemberID:     f.pick("member_id"),
				Scope:        DefaultScope,
				ExpiresIn:    parseSeconds(f.pick("AUTH_EXPIRES")),
			},
			Placement: f.pick("PLACEMENT"),
			Lang:      f.pick("LANG"),
			Protocol:  f.pick("PROTOCOL"),
		}
		if err := CheckDomain(h.Domain); err != nil {
			return nil, err
		}
		return h, nil

	case f.pick("code") != "":
		a := AuthCode{
			Code:     f.pick("code"),
			Domain:   NormalizeDomain(f.pick("domain")),
			MemberID: f.pick("member_id"),
			Scope:    f.pick("scope"),
		}
		if a.Domain == "" {
			return nil, ValidationError("missing required parameters: code and domain")
		}
		if err := CheckDomain(a.Domain); err != nil {
			return nil, err
		}
		return a, nil
	}

	return nil, ValidationError("missing required parameters")
}

func parseSeconds(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return DefaultExpiresIn
	}
	return n
}

// NormalizeDomain is the canonical form of a portal domain used as the
// credential key.
func NormalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

// CheckDomain rejects values that are not a bare host[:port].
func CheckDomain(d string) error {
	if d == "" {
		return ValidationError("domain is required")
	}
	if strings.ContainsAny(d, "/?#@\\ \t\r\n") {
		return ValidationError("invalid domain: %q", d)
	}
	return nil
}
