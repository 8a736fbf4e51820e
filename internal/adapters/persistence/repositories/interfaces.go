package repositories

import (
	"context"

	"bitrix24-connector/internal/adapters/persistence/models"
)

// TokenRepository defines the credential store, one row per portal domain
type TokenRepository interface {
	Get(ctx context.Context, domain string) (*models.BitrixToken, error)
	Save(ctx context.Context, token *models.BitrixToken) error
	Delete(ctx context.Context, domain string) error
	List(ctx context.Context) ([]*models.BitrixToken, error)
	Backup(ctx context.Context) error
	Restore(ctx context.Context) (int, error)
}
