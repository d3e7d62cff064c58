package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"activity_sync/internal/domain"
)

type PrerequisiteStore struct {
	db *sqlx.DB
}

func NewPrerequisiteStore(db *sqlx.DB) *PrerequisiteStore {
	return &PrerequisiteStore{db: db}
}

// ReplaceForActivity deletes every prerequisite of the activity and
// inserts the new set; same full-replace lifecycle as sessions.
func (s *PrerequisiteStore) ReplaceForActivity(ctx context.Context, activityID int64, prereqs []domain.Prerequisite) error {
	ex := GetExecutor(ctx, s.db)

	_, err := ex.ExecContext(ctx, "DELETE FROM activity_prerequisites WHERE activity_id = $1", activityID)
	if err != nil {
		return err
	}

	if len(prereqs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO activity_prerequisites
		(activity_id, name, description, url, course_id, is_required) VALUES `)
	args := make([]interface{}, 0, len(prereqs)*6)

	for i, prereq := range prereqs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args,
			activityID,
			prereq.Name,
			prereq.Description,
			prereq.URL,
			prereq.CourseID,
			prereq.IsRequired,
		)
	}

	_, err = ex.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *PrerequisiteStore) GetByActivityID(ctx context.Context, activityID int64) ([]domain.Prerequisite, error) {
	query := `
		SELECT id, activity_id, name, description, url, course_id, is_required
		FROM activity_prerequisites
		WHERE activity_id = $1
		ORDER BY id`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prereqs []domain.Prerequisite
	for rows.Next() {
		var prereq domain.Prerequisite
		if err := rows.Scan(
			&prereq.ID,
			&prereq.ActivityID,
			&prereq.Name,
			&prereq.Description,
			&prereq.URL,
			&prereq.CourseID,
			&prereq.IsRequired,
		); err != nil {
			return nil, err
		}
		prereqs = append(prereqs, prereq)
	}

	return prereqs, rows.Err()
}
