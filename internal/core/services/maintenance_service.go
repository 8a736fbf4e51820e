package services

import (
	"context"
	"time"

	"bitrix24-connector/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const maintenanceJobTimeout = 2 * time.Minute

// MaintenanceService refreshes tokens before they go stale and keeps the backup file fresh
type MaintenanceService struct {
	tokens *TokenService
	cfg    config.MaintenanceConfig
	cron   *cron.Cron
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(tokens *TokenService, cfg config.MaintenanceConfig) *MaintenanceService {
	return &MaintenanceService{
		tokens: tokens,
		cfg:    cfg,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers the jobs and starts the scheduler
func (s *MaintenanceService) Start() error {
	if !s.cfg.Enabled {
		log.Info().Msg("Token maintenance disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.RefreshSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
		defer cancel()
		s.RefreshStale(ctx)
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.cfg.BackupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
		defer cancel()
		if err := s.tokens.BackupCredentials(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled token backup failed")
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	log.Info().Str("refresh", s.cfg.RefreshSchedule).Str("backup", s.cfg.BackupSchedule).Msg("Token maintenance started")
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *MaintenanceService) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Token maintenance stopped")
}

// RefreshStale refreshes every stored credential inside the expiry buffer.
// Failures are logged per domain.
func (s *MaintenanceService) RefreshStale(ctx context.Context) (refreshed, failed int) {
	creds, err := s.tokens.ListCredentials(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tokens for refresh")
		return 0, 0
	}

	now := s.tokens.Now()
	for _, cred := range creds {
		if cred.RefreshToken == "" || !cred.IsStale(now) {
			continue
		}
		if _, err := s.tokens.Refresh(ctx, cred.Domain); err != nil {
			log.Warn().Err(err).Str("domain", cred.Domain).Msg("Scheduled token refresh failed")
			failed++
			continue
		}
		refreshed++
	}

	if refreshed > 0 || failed > 0 {
		log.Info().Int("refreshed", refreshed).Int("failed", failed).Msg("Scheduled token refresh finished")
	}
	return refreshed, failed
}
