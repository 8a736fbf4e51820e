package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bitrix24-connector/internal/adapters/persistence/models"
	"bitrix24-connector/internal/core/domain"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenBackup is the layout of the JSON mirror file
type TokenBackup struct {
	Timestamp string                `json:"timestamp"`
	Tokens    []*models.BitrixToken `json:"tokens"`
}

// tokenRepository implements TokenRepository interface
type tokenRepository struct {
	db         *gorm.DB
	backupPath string
	mu         sync.Mutex
}

// NewTokenRepository creates a new token repository. An empty backupPath
// disables the JSON mirror.
func NewTokenRepository(db *gorm.DB, backupPath string) TokenRepository {
	return &tokenRepository{db: db, backupPath: backupPath}
}

// Get gets the token row for a domain
func (r *tokenRepository) Get(ctx context.Context, domain string) (*models.BitrixToken, error) {
	var token models.BitrixToken
	err := r.db.WithContext(ctx).Where("domain = ?", domain).First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Save upserts the row by domain and refreshes the backup mirror
func (r *tokenRepository) Save(ctx context.Context, token *models.BitrixToken) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}},
		UpdateAll: true,
	}).Create(token).Error
	if err != nil {
		return err
	}

	r.mirror(ctx)
	return nil
}

// Delete removes the row for a domain
func (r *tokenRepository) Delete(ctx context.Context, domain string) error {
	result := r.db.WithContext(ctx).Where("domain = ?", domain).Delete(&models.BitrixToken{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	r.mirror(ctx)
	return nil
}

// List lists all stored tokens
func (r *tokenRepository) List(ctx context.Context) ([]*models.BitrixToken, error) {
	var tokens []*models.BitrixToken
	err := r.db.WithContext(ctx).Order("domain ASC").Find(&tokens).Error
	return tokens, err
}

// Backup writes every row to the backup file
func (r *tokenRepository) Backup(ctx context.Context) error {
	if r.backupPath == "" {
		return nil
	}

	tokens, err := r.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read tokens for backup: %w", err)
	}

	data, err := json.MarshalIndent(TokenBackup{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Tokens:    tokens,
	}, "", "  ")
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return writeFileAtomic(r.backupPath, data)
}

// Restore upserts every record found in the backup file
func (r *tokenRepository) Restore(ctx context.Context) (int, error) {
	if r.backupPath == "" {
		return 0, fmt.Errorf("backup path not configured")
	}

	r.mu.Lock()
	data, err := os.ReadFile(r.backupPath)
	r.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("failed to read backup file: %w", err)
	}

	var backup TokenBackup
	if err := json.Unmarshal(data, &backup); err != nil {
		return 0, fmt.Errorf("invalid backup file: %w", err)
	}

	restored := 0
	for _, t := range backup.Tokens {
		if t == nil {
			continue
		}
		t.Domain = domain.NormalizeDomain(t.Domain)
		if t.Domain == "" {
			continue
		}
		t.ID = 0
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}},
			UpdateAll: true,
		}).Create(t).Error
		if err != nil {
			return restored, fmt.Errorf("failed to restore %s: %w", t.Domain, err)
		}
		restored++
	}
	if restored > 0 {
		r.mirror(ctx)
	}

	log.Info().Int("count", restored).Str("file", r.backupPath).Msg("Tokens restored from backup")
	return restored, nil
}

// mirror refreshes the backup file; failures are logged only
func (r *tokenRepository) mirror(ctx context.Context) {
	if err := r.Backup(ctx); err != nil {
		log.Error().Err(err).Str("file", r.backupPath).Msg("Failed to write token backup")
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
