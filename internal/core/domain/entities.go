package domain

import "time"

// TokenExpiryBuffer is how long before expires_at a token is already treated as stale.
const TokenExpiryBuffer = 300 * time.Second

// Credential defaults applied at write time
const (
	DefaultTokenType = "Bearer"
	DefaultScope     = "user"
	DefaultExpiresIn = 3600
	UnknownMemberID  = "unknown"
)

// Credential is the OAuth state kept for one Bitrix24 portal (tenant domain)
type Credential struct {
	Domain         string
	MemberID       string
	AccessToken    string
	RefreshToken   string
	TokenType      string
	Scope          string
	ClientEndpoint string
	ServerEndpoint string
	ExpiresIn      int64 // seconds
	ExpiresAt      int64 // unix seconds
	CreatedAt      int64 // unix seconds
}

// Stamp fills defaults and sets CreatedAt/ExpiresAt from now so that
// ExpiresAt == CreatedAt + ExpiresIn.
func (c *Credential) Stamp(now time.Time) {
	if c.TokenType == "" {
		c.TokenType = DefaultTokenType
	}
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.ExpiresIn <= 0 {
		c.ExpiresIn = DefaultExpiresIn
	}
	c.CreatedAt = now.Unix()
	c.ExpiresAt = c.CreatedAt + c.ExpiresIn
}

// IsStale reports whether the access token is expired or inside the expiry buffer.
func (c *Credential) IsStale(now time.Time) bool {
	return c.ExpiresAt-int64(TokenExpiryBuffer/time.Second) <= now.Unix()
}

// IsExpired reports whether expires_at is already in the past (no buffer).
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt < now.Unix()
}

// Address of a contact
type Address struct {
	Street   string `json:"street,omitempty"`
	Ward     string `json:"ward,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
	Full     string `json:"full,omitempty"`
}

// BankInfo is kept in Bitrix24 as a requisite + bank detail pair
type BankInfo struct {
	BankName      string `json:"bankName,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	AccountHolder string `json:"accountHolder,omitempty"`
}

// Contact is the denormalized contact returned to API clients
type Contact struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LastName   string    `json:"lastName,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Email      string    `json:"email,omitempty"`
	Website    string    `json:"website,omitempty"`
	Address    *Address  `json:"address,omitempty"`
	BankInfo   *BankInfo `json:"bankInfo,omitempty"`
	Comments   string    `json:"comments,omitempty"`
	DateCreate string    `json:"dateCreate,omitempty"`
	DateModify string    `json:"dateModify,omitempty"`
	AssignedBy string    `json:"assignedBy,omitempty"`
}

// ContactList is one page of contacts
type ContactList struct {
	Contacts   []*Contact `json:"contacts"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}
