package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredential_Stamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	c := Credential{Domain: "d", AccessToken: "a"}
	c.Stamp(now)

	assert.Equal(t, DefaultTokenType, c.TokenType)
	assert.Equal(t, DefaultScope, c.Scope)
	assert.Equal(t, int64(DefaultExpiresIn), c.ExpiresIn)
	assert.Equal(t, now.Unix(), c.CreatedAt)
	assert.Equal(t, c.CreatedAt+c.ExpiresIn, c.ExpiresAt)
}

func TestCredential_IsStale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := Credential{ExpiresIn: 3600}
	c.Stamp(now)

	assert.False(t, c.IsStale(now))
	assert.False(t, c.IsStale(now.Add(3299*time.Second)))
	assert.True(t, c.IsStale(now.Add(3300*time.Second)))
	assert.True(t, c.IsStale(now.Add(time.Hour)))

	assert.False(t, c.IsExpired(now.Add(3600*time.Second)))
	assert.True(t, c.IsExpired(now.Add(3601*time.Second)))
}

func TestRemoteAPIError(t *testing.T) {
	err := &RemoteAPIError{Code: "ACCESS_DENIED"}
	assert.Equal(t, "Bitrix24 API Error: ACCESS_DENIED", err.Error())

	err.Description = "Access denied"
	assert.Equal(t, "Bitrix24 API Error: Access denied", err.Error())
}
