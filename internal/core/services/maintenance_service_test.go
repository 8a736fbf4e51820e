package services

import (
	"context"
	"testing"
	"time"

	"bitrix24-connector/internal/config"
	"bitrix24-connector/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceService_RefreshStale(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	// stale, refreshable at the fake portal
	s.seed(t, "stale-token", 100)

	// fresh, must be left alone
	_, err := s.tokens.SaveDirect(ctx, domain.DirectToken{
		AccessToken:  "fresh-token",
		RefreshToken: "fresh-refresh",
		Domain:       "fresh.bitrix24.com",
		MemberID:     "member-2",
		ExpiresIn:    3600,
	})
	require.NoError(t, err)

	// stale without refresh token, skipped
	_, err = s.tokens.SaveDirect(ctx, domain.DirectToken{
		AccessToken: "orphan-token",
		Domain:      "orphan.bitrix24.com",
		MemberID:    "member-3",
		ExpiresIn:   60,
	})
	require.NoError(t, err)

	m := NewMaintenanceService(s.tokens, config.MaintenanceConfig{Enabled: true})
	refreshed, failed := m.RefreshStale(ctx)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 0, failed)

	row, err := s.repo.Get(ctx, s.fake.Domain())
	require.NoError(t, err)
	assert.Equal(t, "access-1", row.AccessToken)

	row, err = s.repo.Get(ctx, "fresh.bitrix24.com")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", row.AccessToken)
}

func TestMaintenanceService_RefreshFailureIsCounted(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	_, err := s.tokens.SaveDirect(ctx, domain.DirectToken{
		AccessToken:  "stale-token",
		RefreshToken: "revoked",
		Domain:       s.fake.Domain(),
		MemberID:     "member-1",
		ExpiresIn:    10,
	})
	require.NoError(t, err)

	m := NewMaintenanceService(s.tokens, config.MaintenanceConfig{Enabled: true})
	refreshed, failed := m.RefreshStale(ctx)
	assert.Equal(t, 0, refreshed)
	assert.Equal(t, 1, failed)
}

func TestMaintenanceService_StartStop(t *testing.T) {
	s := newTestStack(t)

	disabled := NewMaintenanceService(s.tokens, config.MaintenanceConfig{Enabled: false})
	require.NoError(t, disabled.Start())

	bad := NewMaintenanceService(s.tokens, config.MaintenanceConfig{
		Enabled:         true,
		RefreshSchedule: "not a schedule",
		BackupSchedule:  "@hourly",
	})
	assert.Error(t, bad.Start())

	m := NewMaintenanceService(s.tokens, config.MaintenanceConfig{
		Enabled:         true,
		RefreshSchedule: "@every 1h",
		BackupSchedule:  "@hourly",
	})
	require.NoError(t, m.Start())

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("maintenance did not stop")
	}
}
