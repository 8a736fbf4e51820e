package main

import (
	"path/filepath"
	"testing"

	"bitrix24-connector/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ClosesDatabaseOnStartupFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		AppMode: "production",
		Port:    "0",
		Database: config.DatabaseConfig{
			Driver:     "sqlite",
			Path:       filepath.Join(dir, "tokens.db"),
			BackupPath: filepath.Join(dir, "tokens.json"),
		},
		Maintenance: config.MaintenanceConfig{
			Enabled:         true,
			RefreshSchedule: "every so often",
			BackupSchedule:  "@hourly",
		},
	}

	err := run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token maintenance")

	require.NotNil(t, config.DB)
	sqlDB, err := config.DB.DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping(), "database should be closed once run returns")
}
