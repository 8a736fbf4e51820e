package models

import (
	"time"

	"bitrix24-connector/internal/core/domain"

	"gorm.io/gorm"
)

// BitrixToken represents bitrix_tokens table, one row per portal domain
type BitrixToken struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	Domain         string    `gorm:"uniqueIndex;size:255;not null" json:"domain"`
	MemberID       string    `gorm:"size:64;not null" json:"member_id"`
	AccessToken    string    `gorm:"type:text;not null" json:"access_token"`
	RefreshToken   string    `gorm:"type:text;not null" json:"refresh_token"`
	ExpiresIn      int64     `gorm:"not null" json:"expires_in"`
	TokenType      string    `gorm:"size:32;not null" json:"token_type"`
	Scope          string    `gorm:"type:text;not null" json:"scope"`
	ClientEndpoint string    `gorm:"size:255" json:"client_endpoint,omitempty"`
	ServerEndpoint string    `gorm:"size:255" json:"server_endpoint,omitempty"`
	ExpiresAt      int64     `gorm:"not null;index" json:"expires_at"`
	CreatedAt      int64     `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (BitrixToken) TableName() string {
	return "bitrix_tokens"
}

// ToDomain converts the row to a domain credential
func (t *BitrixToken) ToDomain() *domain.Credential {
	return &domain.Credential{
		Domain:         t.Domain,
		MemberID:       t.MemberID,
		AccessToken:    t.AccessToken,
		RefreshToken:   t.RefreshToken,
		TokenType:      t.TokenType,
		Scope:          t.Scope,
		ClientEndpoint: t.ClientEndpoint,
		ServerEndpoint: t.ServerEndpoint,
		ExpiresIn:      t.ExpiresIn,
		ExpiresAt:      t.ExpiresAt,
		CreatedAt:      t.CreatedAt,
	}
}

// BitrixTokenFromDomain converts a domain credential to a row
func BitrixTokenFromDomain(c *domain.Credential) *BitrixToken {
	return &BitrixToken{
		Domain:         c.Domain,
		MemberID:       c.MemberID,
		AccessToken:    c.AccessToken,
		RefreshToken:   c.RefreshToken,
		ExpiresIn:      c.ExpiresIn,
		TokenType:      c.TokenType,
		Scope:          c.Scope,
		ClientEndpoint: c.ClientEndpoint,
		ServerEndpoint: c.ServerEndpoint,
		ExpiresAt:      c.ExpiresAt,
		CreatedAt:      c.CreatedAt,
	}
}

// AutoMigrate runs auto migration for the connector tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BitrixToken{},
	)
}
