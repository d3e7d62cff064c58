package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"activity_sync/internal/domain"
)

type HistoryStore struct {
	db *sqlx.DB
}

func NewHistoryStore(db *sqlx.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record appends one history row per field change. The log is
// append-only; nothing here updates or deletes.
func (s *HistoryStore) Record(ctx context.Context, activityID int64, changes []domain.FieldChange) error {
	if len(changes) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO activity_history (activity_id, field_name, old_value, new_value) VALUES ")
	args := make([]interface{}, 0, len(changes)*4)

	for i, change := range changes {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, activityID, change.Field, change.OldValue, change.NewValue)
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *HistoryStore) GetByActivityID(ctx context.Context, activityID int64) ([]domain.HistoryEntry, error) {
	query := `
		SELECT id, activity_id, field_name, old_value, new_value, changed_at
		FROM activity_history
		WHERE activity_id = $1
		ORDER BY changed_at, id`

	var entries []domain.HistoryEntry
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries, query, activityID)
	return entries, err
}
