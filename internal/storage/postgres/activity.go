package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"activity_sync/internal/domain"
)

type ActivityStore struct {
	db *sqlx.DB
}

func NewActivityStore(db *sqlx.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// SnapshotByProvider loads the pre-batch projection of every activity
// stored for the provider: row id plus the history-tracked fields,
// keyed by external id.
func (s *ActivityStore) SnapshotByProvider(ctx context.Context, providerID int64) (map[string]domain.ActivitySnapshot, error) {
	query := `
		SELECT id, external_id, cost, spots_available, schedule, location_name, is_active
		FROM activities
		WHERE provider_id = $1`

	var snapshots []domain.ActivitySnapshot
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &snapshots, query, providerID); err != nil {
		return nil, err
	}

	result := make(map[string]domain.ActivitySnapshot, len(snapshots))
	for _, snap := range snapshots {
		result[snap.ExternalID] = snap
	}
	return result, nil
}

// Upsert writes the activity keyed by (provider_id, external_id). On
// conflict every mutable field is overwritten, the row is reactivated,
// and last_seen_at is refreshed. created_at is never touched.
func (s *ActivityStore) Upsert(ctx context.Context, activity *domain.Activity) (int64, error) {
	query := `
		INSERT INTO activities (
			provider_id, external_id, name, category, subcategory, schedule,
			description, start_date, end_date, start_time, end_time, days_of_week,
			age_min, age_max, cost, cost_includes_tax, tax_amount,
			spots_available, total_spots, registration_url, registration_status,
			registration_button_text, location_id, location_name, raw_data,
			is_active, last_seen_at, has_multiple_sessions, session_count, has_prerequisites
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25,
			TRUE, NOW(), $26, $27, $28
		)
		ON CONFLICT (provider_id, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			schedule = EXCLUDED.schedule,
			description = EXCLUDED.description,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			days_of_week = EXCLUDED.days_of_week,
			age_min = EXCLUDED.age_min,
			age_max = EXCLUDED.age_max,
			cost = EXCLUDED.cost,
			cost_includes_tax = EXCLUDED.cost_includes_tax,
			tax_amount = EXCLUDED.tax_amount,
			spots_available = EXCLUDED.spots_available,
			total_spots = EXCLUDED.total_spots,
			registration_url = EXCLUDED.registration_url,
			registration_status = EXCLUDED.registration_status,
			registration_button_text = EXCLUDED.registration_button_text,
			location_id = EXCLUDED.location_id,
			location_name = EXCLUDED.location_name,
			raw_data = EXCLUDED.raw_data,
			is_active = TRUE,
			last_seen_at = NOW(),
			has_multiple_sessions = EXCLUDED.has_multiple_sessions,
			session_count = EXCLUDED.session_count,
			has_prerequisites = EXCLUDED.has_prerequisites,
			updated_at = NOW()
		RETURNING id`

	var rawData any
	if len(activity.RawData) > 0 {
		rawData = []byte(activity.RawData)
	}

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		activity.ProviderID,
		activity.ExternalID,
		activity.Name,
		activity.Category,
		activity.Subcategory,
		activity.Schedule,
		activity.Description,
		activity.StartDate,
		activity.EndDate,
		activity.StartTime,
		activity.EndTime,
		pq.Array(activity.DaysOfWeek),
		activity.AgeMin,
		activity.AgeMax,
		activity.Cost,
		activity.CostIncludesTax,
		activity.TaxAmount,
		activity.SpotsAvailable,
		activity.TotalSpots,
		activity.RegistrationURL,
		activity.RegistrationStatus,
		activity.RegistrationButtonText,
		activity.LocationID,
		activity.LocationName,
		rawData,
		activity.HasMultipleSessions,
		activity.SessionCount,
		activity.HasPrerequisites,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// DeactivateMissing tombstones every still-active activity of the
// provider whose external id is absent from the scraped set, and
// returns the external ids it flipped. Rows are never hard-deleted.
func (s *ActivityStore) DeactivateMissing(ctx context.Context, providerID int64, scrapedIDs []string) ([]string, error) {
	if scrapedIDs == nil {
		scrapedIDs = []string{}
	}

	query := `
		UPDATE activities
		SET is_active = FALSE, updated_at = NOW()
		WHERE provider_id = $1
		  AND is_active
		  AND NOT (external_id = ANY($2))
		RETURNING external_id`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, providerID, pq.Array(scrapedIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deactivated []string
	for rows.Next() {
		var externalID string
		if err := rows.Scan(&externalID); err != nil {
			return nil, err
		}
		deactivated = append(deactivated, externalID)
	}

	return deactivated, rows.Err()
}
