package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"activity_sync/internal/domain"
)

type SessionStore struct {
	db *sqlx.DB
}

func NewSessionStore(db *sqlx.DB) *SessionStore {
	return &SessionStore{db: db}
}

// ReplaceForActivity deletes every session of the activity and inserts
// the new set, renumbered 1..n by array position. Sessions are never
// patched in place.
func (s *SessionStore) ReplaceForActivity(ctx context.Context, activityID int64, sessions []domain.Session) error {
	ex := GetExecutor(ctx, s.db)

	_, err := ex.ExecContext(ctx, "DELETE FROM activity_sessions WHERE activity_id = $1", activityID)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO activity_sessions
		(activity_id, session_number, session_date, start_time, end_time, location, instructor, notes) VALUES `)
	args := make([]interface{}, 0, len(sessions)*8)

	for i, session := range sessions {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args,
			activityID,
			i+1,
			session.Date,
			session.StartTime,
			session.EndTime,
			session.Location,
			session.Instructor,
			session.Notes,
		)
	}

	_, err = ex.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *SessionStore) GetByActivityID(ctx context.Context, activityID int64) ([]domain.Session, error) {
	query := `
		SELECT id, activity_id, session_number, session_date, start_time, end_time, location, instructor, notes
		FROM activity_sessions
		WHERE activity_id = $1
		ORDER BY session_number`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.ActivityID,
			&session.SessionNumber,
			&session.Date,
			&session.StartTime,
			&session.EndTime,
			&session.Location,
			&session.Instructor,
			&session.Notes,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}
