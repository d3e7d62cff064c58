package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"activity_sync/internal/domain"
)

type LocationStore struct {
	db *sqlx.DB
}

func NewLocationStore(db *sqlx.DB) *LocationStore {
	return &LocationStore{db: db}
}

// Upsert resolves a venue by its (name, address) natural key. On
// conflict only the mutable facility attribute is refreshed, so the
// same venue never duplicates.
func (s *LocationStore) Upsert(ctx context.Context, location *domain.Location) (int64, error) {
	query := `
		INSERT INTO locations (name, address, city, province, facility)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name, address) DO UPDATE SET
			facility = COALESCE(EXCLUDED.facility, locations.facility)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		location.Name,
		location.Address,
		location.City,
		location.Province,
		location.Facility,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}
