package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"activity_sync/internal/domain"
)

type ProviderStore struct {
	db *sqlx.DB
}

func NewProviderStore(db *sqlx.DB) *ProviderStore {
	return &ProviderStore{db: db}
}

func (s *ProviderStore) ListActive(ctx context.Context) ([]domain.Provider, error) {
	query := `
		SELECT id, name, platform, website, is_active, config, created_at, updated_at
		FROM providers
		WHERE is_active
		ORDER BY id`

	var providers []domain.Provider
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &providers, query)
	return providers, err
}

func (s *ProviderStore) GetByID(ctx context.Context, id int64) (*domain.Provider, error) {
	query := `
		SELECT id, name, platform, website, is_active, config, created_at, updated_at
		FROM providers
		WHERE id = $1`

	var provider domain.Provider
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &provider, query, id); err != nil {
		return nil, err
	}
	return &provider, nil
}
